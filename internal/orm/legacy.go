package orm

import (
	"context"
	"strings"
)

// ListParams are the paging and sorting parameters of the legacy list call.
type ListParams struct {
	Start int
	Limit int
	Sort  string
	// Dir is ASC or DESC.
	Dir string
}

// Legacy is the fixed read interface older admin callers were written
// against. A model selects its implementation when it is built.
type Legacy interface {
	GetList(ctx context.Context, params ListParams, filters map[string]any, fields ...string) ([]map[string]any, error)
	GetCount(ctx context.Context, filters map[string]any) (int64, error)
	GetItem(ctx context.Context, id int64, fields ...string) (map[string]any, error)
}

type legacy struct {
	m *Model
}

// NewLegacy returns the default legacy adapter, backed by the query builder.
func NewLegacy(m *Model) Legacy {
	return &legacy{m: m}
}

func (l *legacy) GetList(ctx context.Context, params ListParams, filters map[string]any, fields ...string) ([]map[string]any, error) {
	q := l.m.Query().Filters(filters).Fields(fields...).Offset(params.Start).Limit(params.Limit)
	if params.Sort != "" {
		q = q.Order(params.Sort, strings.EqualFold(params.Dir, "DESC"))
	}
	return q.FetchAll(ctx)
}

func (l *legacy) GetCount(ctx context.Context, filters map[string]any) (int64, error) {
	return l.m.Query().Filters(filters).Count(ctx)
}

// GetItem differs from Model.GetByID by returning nil instead of
// ErrNotFound for a missing record.
func (l *legacy) GetItem(ctx context.Context, id int64, fields ...string) (map[string]any, error) {
	return l.m.Query().Filter(l.m.PrimaryKey(), id).Fields(fields...).FetchRow(ctx)
}
