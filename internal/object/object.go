package object

import (
	"fmt"
	"reflect"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/ormstore/internal/entity"
)

// Object is a mutable entity instance. Committed values live in data,
// pending ones in updates; dirty tracks which fields have pending values.
type Object struct {
	cfg      *entity.Config
	id       int64
	insertID int64
	data     map[string]any
	updates  map[string]any
	dirty    mapset.Set[string]
}

// New creates an instance of a not yet persisted entity, with field defaults.
func New(cfg *entity.Config) *Object {
	o := &Object{
		cfg:     cfg,
		data:    make(map[string]any, len(cfg.Fields)),
		updates: make(map[string]any),
		dirty:   mapset.NewThreadUnsafeSet[string](),
	}

	for name, f := range cfg.Fields {
		switch {
		case f.IsMultiLink():
			o.data[name] = []int64{}
		case f.Default != nil:
			o.data[name] = f.Default
		default:
			o.data[name] = nil
		}
	}

	return o
}

// FromRecord builds a committed instance from a stored row. Columns that are
// not declared fields are ignored.
func FromRecord(cfg *entity.Config, record map[string]any) (*Object, error) {
	o := New(cfg)

	rawID, ok := record[cfg.PrimaryKey]
	if !ok {
		return nil, fmt.Errorf("%w: record of %s has no %s column", entity.ErrConfiguration, cfg.Name, cfg.PrimaryKey)
	}
	id, err := (&entity.Field{Name: cfg.PrimaryKey, Type: entity.TypeInteger}).Filter(rawID)
	if err != nil {
		return nil, err
	}
	if id != nil {
		o.id = id.(int64)
	}

	for name, value := range record {
		f, ok := cfg.Fields[name]
		if !ok {
			continue
		}
		v, err := f.Filter(value)
		if err != nil {
			return nil, err
		}
		o.data[name] = v
	}

	return o, nil
}

func (o *Object) Config() *entity.Config {
	return o.cfg
}

// Name returns the entity type name.
func (o *Object) Name() string {
	return o.cfg.Name
}

func (o *Object) ID() int64 {
	return o.id
}

func (o *Object) SetID(id int64) {
	o.id = id
}

// IsNew reports whether the instance has not been stored yet.
func (o *Object) IsNew() bool {
	return o.id == 0
}

// InsertID is the caller chosen identifier used by the next insert.
func (o *Object) InsertID() int64 {
	return o.insertID
}

func (o *Object) SetInsertID(id int64) {
	o.insertID = id
}

// Set validates v against the field description and records it as a
// pending change. Setting the committed value again drops the change.
func (o *Object) Set(name string, v any) error {
	f, err := o.cfg.Field(name)
	if err != nil {
		return err
	}

	value, err := f.Filter(v)
	if err != nil {
		return err
	}

	if equal(o.data[name], value) {
		delete(o.updates, name)
		o.dirty.Remove(name)
		return nil
	}

	o.updates[name] = value
	o.dirty.Add(name)
	return nil
}

// Assign stores a committed value without marking the field as changed.
// Loaders use it to populate decrypted values and links.
func (o *Object) Assign(name string, v any) error {
	f, err := o.cfg.Field(name)
	if err != nil {
		return err
	}

	value, err := f.Filter(v)
	if err != nil {
		return err
	}

	o.data[name] = value
	return nil
}

// Get returns the pending value of a field if any, else the committed one.
func (o *Object) Get(name string) any {
	if v, ok := o.updates[name]; ok {
		return v
	}
	return o.data[name]
}

// String returns the field value as a string, empty when unset.
func (o *Object) String(name string) string {
	v := o.Get(name)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the field value as a bool, false when unset.
func (o *Object) Bool(name string) bool {
	b, _ := o.Get(name).(bool)
	return b
}

// Int returns the field value as an int64, zero when unset.
func (o *Object) Int(name string) int64 {
	i, _ := o.Get(name).(int64)
	return i
}

// IDs returns the identifiers of a multi link field.
func (o *Object) IDs(name string) []int64 {
	ids, _ := o.Get(name).([]int64)
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// Data returns committed values overlaid with pending ones.
func (o *Object) Data() map[string]any {
	out := make(map[string]any, len(o.data))
	for k, v := range o.data {
		out[k] = v
	}
	for k, v := range o.updates {
		out[k] = v
	}
	return out
}

// Updates returns a copy of the pending changes.
func (o *Object) Updates() map[string]any {
	out := make(map[string]any, len(o.updates))
	for k, v := range o.updates {
		out[k] = v
	}
	return out
}

// Changed lists the fields with pending changes in a stable order.
func (o *Object) Changed() []string {
	fields := o.dirty.ToSlice()
	sort.Strings(fields)
	return fields
}

func (o *Object) HasUpdates() bool {
	return o.dirty.Cardinality() > 0
}

func (o *Object) IsChanged(name string) bool {
	return o.dirty.Contains(name)
}

// CommitChanges moves pending values into the committed state.
func (o *Object) CommitChanges() {
	for k, v := range o.updates {
		o.data[k] = v
	}
	o.updates = make(map[string]any)
	o.dirty.Clear()
}

// Checkpoint records the pending changes and returns a func that puts
// them back, dropping anything set in between.
func (o *Object) Checkpoint() (restore func()) {
	updates := o.Updates()
	dirty := o.dirty.Clone()
	return func() {
		o.updates = updates
		o.dirty = dirty
	}
}

// Rollback discards the pending changes.
func (o *Object) Rollback() {
	o.updates = make(map[string]any)
	o.dirty.Clear()
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}
