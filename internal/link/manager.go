package link

import (
	"context"
	"fmt"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/orm"
	"github.com/sirupsen/logrus"
)

// Manager hides the link storage of a field behind clear and create calls.
type Manager struct {
	embedded Strategy
	generic  Strategy
	relation Strategy
}

func NewManager() *Manager {
	return &Manager{
		embedded: Embedded{},
		generic:  GenericLinkTable{},
		relation: RelationTable{},
	}
}

// Strategy returns the storage used by a link field.
func (lm *Manager) Strategy(f *entity.Field) (Strategy, error) {
	switch f.LinkKind() {
	case entity.LinkObject:
		return lm.embedded, nil
	case entity.LinkObjectList:
		return lm.generic, nil
	case entity.LinkManyToMany:
		return lm.relation, nil
	}
	return nil, fmt.Errorf("%w: %s is not an object link", entity.ErrConfiguration, f.Name)
}

func (lm *Manager) strategy(obj *object.Object, field string) (Strategy, *entity.Field, error) {
	f, err := obj.Config().Field(field)
	if err != nil {
		return nil, nil, err
	}
	s, err := lm.Strategy(f)
	if err != nil {
		return nil, nil, err
	}
	return s, f, nil
}

// ClearLinks removes every stored link of field towards targetType.
func (lm *Manager) ClearLinks(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string) error {
	s, _, err := lm.strategy(obj, field)
	if err != nil {
		return err
	}
	return s.Clear(ctx, m, obj, field, targetType)
}

// CreateLinks stores one link per id. The position of an id in ids becomes
// its zero based order.
func (lm *Manager) CreateLinks(ctx context.Context, m *orm.Model, obj *object.Object, field, targetType string, ids []int64) error {
	s, _, err := lm.strategy(obj, field)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.Create(ctx, m, obj, field, targetType, ids)
}

// Rewrite replaces the stored links of a multi link field with its current
// value. There is no diffing: the old links are cleared, the new ones created.
func (lm *Manager) Rewrite(ctx context.Context, m *orm.Model, obj *object.Object, field string) error {
	s, f, err := lm.strategy(obj, field)
	if err != nil {
		return err
	}

	if err := s.Clear(ctx, m, obj, field, f.LinkedObject()); err != nil {
		return err
	}

	ids := obj.IDs(field)
	if len(ids) == 0 {
		return nil
	}
	logrus.Debugf("links of %s %d.%s rewritten with %d targets", obj.Name(), obj.ID(), field, len(ids))
	return s.Create(ctx, m, obj, field, f.LinkedObject(), ids)
}

// ClearAll removes the links of every multi link field of obj.
func (lm *Manager) ClearAll(ctx context.Context, m *orm.Model, obj *object.Object) error {
	for _, field := range obj.Config().MultiLinkFields() {
		f := obj.Config().Fields[field]
		if err := lm.ClearLinks(ctx, m, obj, field, f.LinkedObject()); err != nil {
			return fmt.Errorf("clear %s links: %w", field, err)
		}
	}
	return nil
}

// Load populates the multi link fields of obj from their storage.
func (lm *Manager) Load(ctx context.Context, m *orm.Model, obj *object.Object) error {
	for _, field := range obj.Config().MultiLinkFields() {
		s, _, err := lm.strategy(obj, field)
		if err != nil {
			return err
		}
		ids, err := s.Load(ctx, m, obj, field)
		if err != nil {
			return err
		}
		if err := obj.Assign(field, ids); err != nil {
			return err
		}
	}
	return nil
}
