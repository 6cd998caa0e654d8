package link

import (
	"context"
	"fmt"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/orm"
)

// Strategy stores the links of one field. Every method works on the stores
// the model is bound to, so a transaction bound model keeps link writes in
// the same transaction as the owning row.
type Strategy interface {
	// Clear removes the current links of field towards targetType.
	Clear(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string) error
	// Create links field to ids, keeping the order of ids.
	Create(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string, ids []int64) error
	// Load returns the linked ids in their stored order.
	Load(ctx context.Context, m *orm.Model, obj *object.Object, field string) ([]int64, error)
}

var (
	_ Strategy = Embedded{}
	_ Strategy = GenericLinkTable{}
	_ Strategy = RelationTable{}
)

// Embedded keeps a single linked id in a column of the owning row.
type Embedded struct{}

func (Embedded) Clear(ctx context.Context, m *orm.Model, obj *object.Object, field, _ string) error {
	return m.Master().UpdateRow(ctx, m.Table(), m.PrimaryKey(), obj.ID(), map[string]any{field: nil})
}

func (Embedded) Create(ctx context.Context, m *orm.Model, obj *object.Object, field, _ string, ids []int64) error {
	if len(ids) > 1 {
		return fmt.Errorf("%w: %s.%s holds a single link, got %d", entity.ErrInvalidValue, obj.Name(), field, len(ids))
	}
	var value any
	if len(ids) == 1 {
		value = ids[0]
	}
	return m.Master().UpdateRow(ctx, m.Table(), m.PrimaryKey(), obj.ID(), map[string]any{field: value})
}

func (Embedded) Load(ctx context.Context, m *orm.Model, obj *object.Object, field string) ([]int64, error) {
	value, err := m.Query().Filter(m.PrimaryKey(), obj.ID()).Fields(field).FetchOne(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := value.(int64)
	if !ok || id == 0 {
		return []int64{}, nil
	}
	return []int64{id}, nil
}

// GenericLinkTable keeps links in the shared polymorphic links table.
type GenericLinkTable struct{}

func (GenericLinkTable) Clear(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string) error {
	return m.Master().DeleteLinks(ctx, obj.Name(), obj.ID(), field, targetType)
}

func (GenericLinkTable) Create(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string, ids []int64) error {
	links := make([]*model.Link, len(ids))
	for i, id := range ids {
		links[i] = &model.Link{
			SrcType:    obj.Name(),
			SrcID:      obj.ID(),
			SrcField:   field,
			TargetType: targetType,
			TargetID:   id,
			Order:      i,
		}
	}
	return m.Master().CreateLinks(ctx, links)
}

func (GenericLinkTable) Load(ctx context.Context, m *orm.Model, obj *object.Object, field string) ([]int64, error) {
	links, err := m.Slave().ListLinks(ctx, obj.Name(), obj.ID(), field)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(links))
	for i, l := range links {
		ids[i] = l.TargetID
	}
	return ids, nil
}

// RelationTable keeps links in the dedicated table of a many-to-many field.
type RelationTable struct{}

func (RelationTable) Clear(ctx context.Context, m *orm.Model, obj *object.Object, field, _ string) error {
	table, err := m.RelationTable(field)
	if err != nil {
		return err
	}
	return m.Master().DeleteRelations(ctx, table, obj.ID())
}

func (RelationTable) Create(ctx context.Context, m *orm.Model, obj *object.Object, field, _ string, ids []int64) error {
	table, err := m.RelationTable(field)
	if err != nil {
		return err
	}

	rows := make([]*model.Relation, len(ids))
	for i, id := range ids {
		rows[i] = &model.Relation{
			SourceID: obj.ID(),
			TargetID: id,
			OrderNo:  i,
		}
	}
	return m.Master().CreateRelations(ctx, table, rows)
}

func (RelationTable) Load(ctx context.Context, m *orm.Model, obj *object.Object, field string) ([]int64, error) {
	table, err := m.RelationTable(field)
	if err != nil {
		return nil, err
	}

	rows, err := m.Slave().ListRelations(ctx, table, obj.ID())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.TargetID
	}
	return ids, nil
}
