package orm

import (
	"context"
	"sort"

	"github.com/emrgen/ormstore/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order is one sort key of a query.
type Order struct {
	Field string
	Desc  bool
}

// Query builds a read on the table of a model. Filter values are matched
// with equality, nil matches NULL and a slice matches any of its elements.
type Query struct {
	model   *Model
	store   store.Store
	filters map[string]any
	fields  []string
	order   []Order
	limit   int
	offset  int
}

// Query starts a query on the slave connection.
func (m *Model) Query() *Query {
	return &Query{
		model:   m,
		store:   m.slave,
		filters: make(map[string]any),
	}
}

func (q *Query) Filters(filters map[string]any) *Query {
	for k, v := range filters {
		q.filters[k] = v
	}
	return q
}

func (q *Query) Filter(field string, value any) *Query {
	q.filters[field] = value
	return q
}

// Fields restricts the returned columns. No fields selects all of them.
func (q *Query) Fields(fields ...string) *Query {
	q.fields = append(q.fields, fields...)
	return q
}

func (q *Query) Order(field string, desc bool) *Query {
	q.order = append(q.order, Order{Field: field, Desc: desc})
	return q
}

func (q *Query) Limit(limit int) *Query {
	q.limit = limit
	return q
}

func (q *Query) Offset(offset int) *Query {
	q.offset = offset
	return q
}

func (q *Query) where(ctx context.Context) *gorm.DB {
	tx := q.store.DB().WithContext(ctx).Table(q.model.Table())

	keys := make([]string, 0, len(q.filters))
	for k := range q.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: k}, Value: q.filters[k]})
	}
	return tx
}

func (q *Query) build(ctx context.Context) *gorm.DB {
	tx := q.where(ctx)

	if len(q.fields) > 0 {
		columns := make([]clause.Column, len(q.fields))
		for i, f := range q.fields {
			columns[i] = clause.Column{Name: f}
		}
		tx = tx.Clauses(clause.Select{Columns: columns})
	}

	for _, o := range q.order {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	if q.limit > 0 {
		tx = tx.Limit(q.limit)
	}
	if q.offset > 0 {
		tx = tx.Offset(q.offset)
	}
	return tx
}

// FetchAll returns every matching record.
func (q *Query) FetchAll(ctx context.Context) ([]map[string]any, error) {
	var rows []map[string]any
	if err := q.build(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	for i, row := range rows {
		rows[i] = q.model.normalize(row)
	}
	return rows, nil
}

// FetchRow returns the first matching record, nil when there is none.
func (q *Query) FetchRow(ctx context.Context) (map[string]any, error) {
	var rows []map[string]any
	if err := q.build(ctx).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return q.model.normalize(rows[0]), nil
}

// FetchOne returns the first selected field of the first matching record.
// The primary key is returned when no field was selected.
func (q *Query) FetchOne(ctx context.Context) (any, error) {
	field := q.model.PrimaryKey()
	if len(q.fields) > 0 {
		field = q.fields[0]
	} else {
		q.fields = []string{field}
	}

	row, err := q.FetchRow(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	return row[field], nil
}

// Count returns the number of matching records, ignoring limit and order.
func (q *Query) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q.where(ctx).Count(&count).Error
	return count, err
}
