package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emrgen/ormstore/internal/compress"
	"github.com/emrgen/ormstore/internal/crypt"
	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/event"
	"github.com/emrgen/ormstore/internal/link"
	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/orm"
	"github.com/emrgen/ormstore/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

const (
	opInsert        = "insert"
	opUpdate        = "update"
	opDelete        = "delete"
	opDeleteObjects = "delete_objects"
	opPublish       = "publish"
	opUnpublish     = "unpublish"
	opAddVersion    = "add_version"
)

// Options wire the collaborators of an ObjectStore.
type Options struct {
	Models *orm.Factory
	Links  *link.Manager
	Events *event.Manager
	// Cipher encrypts the encrypted fields. Entities with encrypted fields
	// fail with an EncryptionError when it is nil.
	Cipher *crypt.Cipher
	// Compress encodes version snapshots, nop when nil.
	Compress compress.Compress
	Scope    tally.Scope
}

// ObjectStore runs the write operations on objects: row, links, versions
// and history inside one transaction for transactional entities, with the
// lifecycle events fired around them.
type ObjectStore struct {
	models   *orm.Factory
	links    *link.Manager
	events   *event.Manager
	cipher   *crypt.Cipher
	compress compress.Compress
	metrics  *Metrics
	locks    *keyedMutex
}

// NewObjectStore creates a new ObjectStore.
func NewObjectStore(opts Options) *ObjectStore {
	s := &ObjectStore{
		models:   opts.Models,
		links:    opts.Links,
		events:   opts.Events,
		cipher:   opts.Cipher,
		compress: opts.Compress,
		metrics:  NewMetrics(opts.Scope),
		locks:    newKeyedMutex(),
	}
	if s.links == nil {
		s.links = link.NewManager()
	}
	if s.events == nil {
		s.events = event.NewManager()
	}
	if s.compress == nil {
		s.compress = compress.NewNop()
	}
	return s
}

// Events returns the hook registry the store fires.
func (s *ObjectStore) Events() *event.Manager {
	return s.events
}

// Models returns the model factory of the store.
func (s *ObjectStore) Models() *orm.Factory {
	return s.models
}

// New returns an unsaved object of the named entity with its defaults.
func (s *ObjectStore) New(name string) (*object.Object, error) {
	cfg, err := s.models.Registry().Get(name)
	if err != nil {
		return nil, err
	}
	return object.New(cfg), nil
}

// Load reads an object with decrypted fields and its multi links.
func (s *ObjectStore) Load(ctx context.Context, name string, id int64) (*object.Object, error) {
	m, err := s.models.Model(name)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, m, id)
}

func (s *ObjectStore) load(ctx context.Context, m *orm.Model, id int64) (*object.Object, error) {
	row, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	obj, err := object.FromRecord(m.Config(), row)
	if err != nil {
		return nil, err
	}
	if err := s.decrypt(obj); err != nil {
		return nil, err
	}
	if err := s.links.Load(ctx, m, obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// run executes write inside a transaction when the entity is transactional.
// The model handed to write is bound to the transaction.
func (s *ObjectStore) run(ctx context.Context, m *orm.Model, write func(tm *orm.Model) error) error {
	if !m.Config().Transactional {
		return write(m)
	}
	return m.Master().Transaction(ctx, func(tx store.Store) error {
		return write(m.WithStore(tx))
	})
}

func (s *ObjectStore) fire(ctx context.Context, e event.Event, obj *object.Object, committed bool) error {
	if msg, vetoed := s.events.Fire(ctx, e, obj); vetoed {
		return &HookVetoError{Event: e, Message: msg, Committed: committed}
	}
	return nil
}

// Insert stores a new object and returns its identifier. An object with an
// insert id is stored under that id.
func (s *ObjectStore) Insert(ctx context.Context, obj *object.Object) (id int64, err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opInsert, err) }()

	if cfg.ReadOnly {
		return 0, fmt.Errorf("%w: %s", ErrReadOnly, cfg.Name)
	}
	if !obj.HasUpdates() && obj.InsertID() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNothingToInsert, cfg.Name)
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return 0, err
	}

	if err := s.fire(ctx, event.BeforeAdd, obj, false); err != nil {
		return 0, err
	}

	err = s.run(ctx, m, func(tm *orm.Model) error {
		return s.insert(ctx, tm, obj)
	})
	if err != nil {
		obj.SetID(0)
		return 0, wrap(cfg.Name, opInsert, err)
	}

	obj.CommitChanges()
	logrus.Debugf("%s %d inserted", cfg.Name, obj.ID())

	if err := s.fire(ctx, event.AfterAdd, obj, true); err != nil {
		return obj.ID(), err
	}
	return obj.ID(), nil
}

func (s *ObjectStore) insert(ctx context.Context, m *orm.Model, obj *object.Object) error {
	cfg := obj.Config()

	if err := s.checkUnique(ctx, m, obj, false); err != nil {
		return err
	}

	values := storedValues(cfg, obj.Data())
	if obj.InsertID() != 0 {
		values[cfg.PrimaryKey] = obj.InsertID()
	}
	if err := s.encrypt(obj, values, true); err != nil {
		return err
	}

	id, err := m.Master().InsertRow(ctx, m.Table(), m.PrimaryKey(), values)
	if err != nil {
		return err
	}
	obj.SetID(id)

	for _, field := range cfg.MultiLinkFields() {
		if len(obj.IDs(field)) == 0 {
			continue
		}
		if err := s.links.Rewrite(ctx, m, obj, field); err != nil {
			return err
		}
	}

	if err := s.history(ctx, m, obj.ID(), model.ActionCreate); err != nil {
		return err
	}

	return s.fire(ctx, event.AfterAddBeforeCommit, obj, false)
}

// checkUnique reports every unique field whose value is held by another row.
func (s *ObjectStore) checkUnique(ctx context.Context, m *orm.Model, obj *object.Object, changedOnly bool) error {
	taken := make(map[string]any)
	for _, field := range obj.Config().UniqueFields() {
		if changedOnly && !obj.IsChanged(field) {
			continue
		}
		value := obj.Get(field)
		if value == nil {
			continue
		}
		unique, err := m.CheckUnique(ctx, obj.ID(), field, value)
		if err != nil {
			return err
		}
		if !unique {
			taken[field] = value
		}
	}

	if len(taken) > 0 {
		return &UniqueConstraintError{Object: obj.Name(), Fields: taken}
	}
	return nil
}

// Update stores the pending changes of an object. Without pending changes
// it only fires the before and after update events.
func (s *ObjectStore) Update(ctx context.Context, obj *object.Object) (id int64, err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opUpdate, err) }()

	if err := s.guard(obj, false); err != nil {
		return 0, err
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return 0, err
	}

	if err := s.fire(ctx, event.BeforeUpdate, obj, false); err != nil {
		return 0, err
	}

	if obj.HasUpdates() {
		err = s.run(ctx, m, func(tm *orm.Model) error {
			return s.update(ctx, tm, obj, model.ActionUpdate)
		})
		if err != nil {
			return 0, wrap(cfg.Name, opUpdate, err)
		}
		obj.CommitChanges()
	}

	if err := s.fire(ctx, event.AfterUpdate, obj, true); err != nil {
		return obj.ID(), err
	}
	return obj.ID(), nil
}

// update is the write path shared by update, publish, unpublish and the
// live row save of AddVersion.
func (s *ObjectStore) update(ctx context.Context, m *orm.Model, obj *object.Object, action model.Action) error {
	cfg := obj.Config()

	if err := s.checkUnique(ctx, m, obj, true); err != nil {
		return err
	}

	values := storedValues(cfg, obj.Updates())
	if err := s.encrypt(obj, values, false); err != nil {
		return err
	}

	for _, field := range cfg.MultiLinkFields() {
		if !obj.IsChanged(field) {
			continue
		}
		if err := s.links.Rewrite(ctx, m, obj, field); err != nil {
			return err
		}
	}

	if err := m.Master().UpdateRow(ctx, m.Table(), m.PrimaryKey(), obj.ID(), values); err != nil {
		return err
	}

	if err := s.history(ctx, m, obj.ID(), action); err != nil {
		return err
	}

	return s.fire(ctx, event.AfterUpdateBeforeCommit, obj, false)
}

// Delete removes an object. Its multi links are cleared before the row
// delete is attempted, so for non transactional entities they are gone
// even when the row delete fails.
func (s *ObjectStore) Delete(ctx context.Context, obj *object.Object) (err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opDelete, err) }()

	if err := s.guard(obj, false); err != nil {
		return err
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return err
	}

	if err := s.fire(ctx, event.BeforeDelete, obj, false); err != nil {
		return err
	}

	err = s.run(ctx, m, func(tm *orm.Model) error {
		clearErr := s.links.ClearAll(ctx, tm, obj)
		if _, err := tm.Master().DeleteRows(ctx, tm.Table(), tm.PrimaryKey(), obj.ID()); err != nil || clearErr != nil {
			return errors.Join(clearErr, err)
		}

		if err := s.history(ctx, tm, obj.ID(), model.ActionDelete); err != nil {
			return err
		}

		return s.fire(ctx, event.AfterDeleteBeforeCommit, obj, false)
	})
	if err != nil {
		return wrap(cfg.Name, opDelete, err)
	}

	logrus.Debugf("%s %d deleted", cfg.Name, obj.ID())
	return s.fire(ctx, event.AfterDelete, obj, true)
}

// DeleteObjects removes the rows of ids with one statement together with
// their links. Delete events are fired per id.
func (s *ObjectStore) DeleteObjects(ctx context.Context, name string, ids []int64) (err error) {
	m, err := s.models.Model(name)
	if err != nil {
		return err
	}
	cfg := m.Config()
	defer func() { s.metrics.record(cfg.Name, opDeleteObjects, err) }()

	if cfg.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, cfg.Name)
	}
	if len(ids) == 0 {
		return nil
	}

	stub := object.New(cfg)
	for _, id := range ids {
		stub.SetID(id)
		if err := s.fire(ctx, event.BeforeDelete, stub, false); err != nil {
			return err
		}
	}

	err = s.run(ctx, m, func(tm *orm.Model) error {
		if _, err := tm.Master().DeleteRows(ctx, tm.Table(), tm.PrimaryKey(), ids...); err != nil {
			return err
		}
		if err := tm.Master().DeleteLinksFrom(ctx, cfg.Name, ids); err != nil {
			return err
		}
		for _, field := range cfg.MultiLinkFields() {
			if !cfg.Fields[field].IsManyToMany() {
				continue
			}
			table, err := tm.RelationTable(field)
			if err != nil {
				return err
			}
			if err := tm.Master().DeleteRelations(ctx, table, ids...); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := s.history(ctx, tm, id, model.ActionDelete); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrap(cfg.Name, opDeleteObjects, err)
	}

	var vetoes []error
	for _, id := range ids {
		stub.SetID(id)
		if err := s.fire(ctx, event.AfterDelete, stub, true); err != nil {
			vetoes = append(vetoes, err)
		}
	}
	return errors.Join(vetoes...)
}

// Publish marks an object as published. When version is positive the
// snapshot of that version is applied to the object first.
func (s *ObjectStore) Publish(ctx context.Context, obj *object.Object, version int64) (err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opPublish, err) }()

	if err := s.guard(obj, true); err != nil {
		return err
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return err
	}

	if err := s.fire(ctx, event.BeforePublish, obj, false); err != nil {
		return err
	}

	restore := obj.Checkpoint()
	err = s.run(ctx, m, func(tm *orm.Model) error {
		if version > 0 {
			if err := s.applyVersion(ctx, tm, obj, version); err != nil {
				return err
			}
			if err := obj.Set(entity.FieldPublishedVersion, version); err != nil {
				return err
			}
		}
		if err := obj.Set(entity.FieldPublished, true); err != nil {
			return err
		}
		return s.update(ctx, tm, obj, model.ActionPublish)
	})
	if err != nil {
		restore()
		return wrap(cfg.Name, opPublish, err)
	}

	obj.CommitChanges()
	return s.fire(ctx, event.AfterPublish, obj, true)
}

// Unpublish clears the published flag of an object.
func (s *ObjectStore) Unpublish(ctx context.Context, obj *object.Object) (err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opUnpublish, err) }()

	if err := s.guard(obj, true); err != nil {
		return err
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return err
	}

	if err := s.fire(ctx, event.BeforeUnpublish, obj, false); err != nil {
		return err
	}

	restore := obj.Checkpoint()
	err = s.run(ctx, m, func(tm *orm.Model) error {
		if err := obj.Set(entity.FieldPublished, false); err != nil {
			return err
		}
		return s.update(ctx, tm, obj, model.ActionUnpublish)
	})
	if err != nil {
		restore()
		return wrap(cfg.Name, opUnpublish, err)
	}

	obj.CommitChanges()
	return s.fire(ctx, event.AfterUnpublish, obj, true)
}

// AddVersion stores a snapshot of the in memory values of obj under the
// next version number and returns that number. While the live row is not
// published it receives the non null values of obj, so drafts follow the
// latest edit. AddVersion calls on the same object are serialized and
// always run in a transaction, a failed call does not use up a number.
func (s *ObjectStore) AddVersion(ctx context.Context, obj *object.Object) (number int64, err error) {
	cfg := obj.Config()
	defer func() { s.metrics.record(cfg.Name, opAddVersion, err) }()

	if err := s.guard(obj, true); err != nil {
		return 0, err
	}

	m, err := s.models.Model(cfg.Name)
	if err != nil {
		return 0, err
	}

	if err := s.fire(ctx, event.BeforeAddVersion, obj, false); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(cfg.Name + ":" + strconv.FormatInt(obj.ID(), 10))
	defer unlock()

	actor := ActorFromContext(ctx)
	now := time.Now().UTC()
	var livePublished bool

	err = m.Master().Transaction(ctx, func(tx store.Store) error {
		tm := m.WithStore(tx)

		last, err := tx.LastVersion(ctx, cfg.Name, obj.ID())
		if err != nil {
			return err
		}
		number = last + 1

		data, err := s.snapshot(obj)
		if err != nil {
			return err
		}

		err = tx.CreateVersion(ctx, &model.Version{
			ObjectType:  cfg.Name,
			ObjectID:    obj.ID(),
			Number:      number,
			Data:        data,
			Compression: s.compress.Name(),
			ActorID:     actor,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}

		live, err := s.load(ctx, tm, obj.ID())
		if err != nil {
			return err
		}

		livePublished = live.Bool(entity.FieldPublished)
		if !livePublished {
			for name, value := range obj.Data() {
				if value == nil || cfg.Fields[name].System {
					continue
				}
				if err := live.Set(name, value); err != nil {
					return err
				}
			}
		}

		if err := live.Set(entity.FieldDateUpdated, now); err != nil {
			return err
		}
		if actor != 0 {
			if err := live.Set(entity.FieldEditorID, actor); err != nil {
				return err
			}
		}
		if err := live.Set(entity.FieldLastVersion, number); err != nil {
			return err
		}

		return s.update(ctx, tm, live, model.ActionNewVersion)
	})
	if err != nil {
		return 0, wrap(cfg.Name, opAddVersion, err)
	}

	if !livePublished {
		obj.CommitChanges()
	}
	if err := obj.Assign(entity.FieldLastVersion, number); err != nil {
		return number, err
	}
	if err := obj.Assign(entity.FieldDateUpdated, now); err != nil {
		return number, err
	}
	if actor != 0 {
		if err := obj.Assign(entity.FieldEditorID, actor); err != nil {
			return number, err
		}
	}

	logrus.Debugf("%s %d version %d added", cfg.Name, obj.ID(), number)

	if err := s.fire(ctx, event.AfterAddVersion, obj, true); err != nil {
		return number, err
	}
	return number, nil
}

// History returns the audit entries of an object, oldest first.
func (s *ObjectStore) History(ctx context.Context, name string, id int64) ([]*model.History, error) {
	m, err := s.models.Model(name)
	if err != nil {
		return nil, err
	}
	return m.Slave().ListHistory(ctx, m.Table(), id)
}

func (s *ObjectStore) history(ctx context.Context, m *orm.Model, id int64, action model.Action) error {
	if !m.Config().SaveHistory {
		return nil
	}

	return m.Master().CreateHistory(ctx, &model.History{
		ID:        uuid.New().String(),
		ActorID:   ActorFromContext(ctx),
		EntityID:  id,
		Action:    action,
		Table:     m.Table(),
		Timestamp: time.Now().UTC(),
	})
}

// guard rejects writes on read only entities and on unsaved objects.
func (s *ObjectStore) guard(obj *object.Object, versioned bool) error {
	cfg := obj.Config()
	if cfg.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, cfg.Name)
	}
	if obj.ID() == 0 {
		return fmt.Errorf("%w: %s", ErrMissingIdentifier, cfg.Name)
	}
	if versioned && !cfg.RevControl {
		return fmt.Errorf("%w: %s", ErrNotVersioned, cfg.Name)
	}
	return nil
}

// storedValues keeps the values that have a column in the entity table.
func storedValues(cfg *entity.Config, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for name, value := range values {
		f, ok := cfg.Fields[name]
		if !ok || !f.Stored() {
			continue
		}
		out[name] = value
	}
	return out
}
