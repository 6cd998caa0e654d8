package orm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/emrgen/ormstore/internal/cache"
	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Options configure the models built for every entity.
type Options struct {
	// Cache is used by the cached reads. Nil disables caching.
	Cache cache.Cache
	// CacheTTL is the hard lifetime of a cache entry.
	CacheTTL time.Duration
	// Compat builds the legacy adapter of a model, NewLegacy when nil.
	Compat func(m *Model) Legacy
}

// Model binds an entity to its connections, cache and table.
type Model struct {
	cfg    *entity.Config
	master store.Store
	slave  store.Store
	prefix string
	cache  cache.Cache
	ttl    time.Duration
	compat Legacy
}

// New resolves the connections of cfg through provider.
func New(cfg *entity.Config, provider store.Provider, opts Options) (*Model, error) {
	if cfg.Connection == "" {
		return nil, fmt.Errorf("%w: %s has no connection", entity.ErrConfiguration, cfg.Name)
	}

	master, err := provider.Provide(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrConfiguration, cfg.Name, err)
	}

	slave := master
	if cfg.SlaveConnection != "" {
		slave, err = provider.Provide(cfg.SlaveConnection)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", entity.ErrConfiguration, cfg.Name, err)
		}
	}

	var prefix string
	if cfg.UseDBPrefix {
		prefix, err = provider.Prefix(cfg.Connection)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", entity.ErrConfiguration, cfg.Name, err)
		}
	}

	m := &Model{
		cfg:    cfg,
		master: master,
		slave:  slave,
		prefix: prefix,
		cache:  opts.Cache,
		ttl:    opts.CacheTTL,
	}

	if opts.Compat != nil {
		m.compat = opts.Compat(m)
	} else {
		m.compat = NewLegacy(m)
	}

	return m, nil
}

func (m *Model) Name() string {
	return m.cfg.Name
}

func (m *Model) Config() *entity.Config {
	return m.cfg
}

// Table returns the table name including the connection prefix.
func (m *Model) Table() string {
	return m.prefix + m.cfg.Table
}

// Prefix is the table prefix of the model, empty unless requested.
func (m *Model) Prefix() string {
	return m.prefix
}

func (m *Model) PrimaryKey() string {
	return m.cfg.PrimaryKey
}

// Master is the store writes go to.
func (m *Model) Master() store.Store {
	return m.master
}

// Slave is the store reads go to, the master when no slave is configured.
func (m *Model) Slave() store.Store {
	return m.slave
}

// WithStore returns a copy of the model whose reads and writes go to s.
// It is used to bind a model to a transaction.
func (m *Model) WithStore(s store.Store) *Model {
	c := *m
	c.master = s
	c.slave = s
	return &c
}

// Compat returns the legacy adapter chosen at construction.
func (m *Model) Compat() Legacy {
	return m.compat
}

// RelationTable returns the prefixed many-to-many table of a field.
func (m *Model) RelationTable(field string) (string, error) {
	table, err := m.cfg.RelationsTable(field)
	if err != nil {
		return "", err
	}
	return m.prefix + table, nil
}

// CacheKey hashes the entity name and params into a stable key.
func (m *Model) CacheKey(params ...any) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, m.cfg.Name)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return m.cfg.Name + ":" + strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "-")), 16)
}

// GetByID returns the record with the given primary key.
func (m *Model) GetByID(ctx context.Context, id int64, fields ...string) (map[string]any, error) {
	row, err := m.Query().Filter(m.cfg.PrimaryKey, id).Fields(fields...).FetchRow(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, m.cfg.Name, id)
	}
	return row, nil
}

// GetByField returns the first record whose field equals value.
func (m *Model) GetByField(ctx context.Context, field string, value any, fields ...string) (map[string]any, error) {
	if field != m.cfg.PrimaryKey {
		if _, err := m.cfg.Field(field); err != nil {
			return nil, err
		}
	}

	row, err := m.Query().Filter(field, value).Fields(fields...).FetchRow(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %s=%v", ErrNotFound, m.cfg.Name, field, value)
	}
	return row, nil
}

// GetMany returns the records of ids. An empty id list yields an empty result.
func (m *Model) GetMany(ctx context.Context, ids []int64, fields ...string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return []map[string]any{}, nil
	}
	return m.Query().Filter(m.cfg.PrimaryKey, ids).Fields(fields...).FetchAll(ctx)
}

// GetCachedByID is GetByID read through the cache. Misses are not cached.
func (m *Model) GetCachedByID(ctx context.Context, id int64) (map[string]any, error) {
	return m.cached(ctx, m.CacheKey("item", id), func() (map[string]any, error) {
		return m.GetByID(ctx, id)
	})
}

// GetCachedByField is GetByField read through the cache.
func (m *Model) GetCachedByField(ctx context.Context, field string, value any) (map[string]any, error) {
	return m.cached(ctx, m.CacheKey("item", field, value), func() (map[string]any, error) {
		return m.GetByField(ctx, field, value)
	})
}

// GetManyCached is GetMany read through the cache.
func (m *Model) GetManyCached(ctx context.Context, ids []int64) ([]map[string]any, error) {
	if len(ids) == 0 {
		return []map[string]any{}, nil
	}
	if m.cache == nil {
		return m.GetMany(ctx, ids)
	}

	key := m.CacheKey("list", fmt.Sprint(ids))
	var rows []map[string]any
	ok, err := m.cache.Load(ctx, key, &rows)
	if err != nil {
		logrus.Warnf("cache load %s failed: %v", key, err)
	}
	if ok {
		for i, row := range rows {
			rows[i] = m.normalize(row)
		}
		return rows, nil
	}

	rows, err = m.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Save(ctx, key, rows, m.ttl); err != nil {
		logrus.Warnf("cache save %s failed: %v", key, err)
	}
	return rows, nil
}

func (m *Model) cached(ctx context.Context, key string, load func() (map[string]any, error)) (map[string]any, error) {
	if m.cache == nil {
		return load()
	}

	var row map[string]any
	ok, err := m.cache.Load(ctx, key, &row)
	if err != nil {
		logrus.Warnf("cache load %s failed: %v", key, err)
	}
	if ok && row != nil {
		return m.normalize(row), nil
	}

	row, err = load()
	if err != nil {
		return nil, err
	}
	if err := m.cache.Save(ctx, key, row, m.ttl); err != nil {
		logrus.Warnf("cache save %s failed: %v", key, err)
	}
	return row, nil
}

// CheckUnique reports whether no record other than id holds value in field.
func (m *Model) CheckUnique(ctx context.Context, id int64, field string, value any) (bool, error) {
	if _, err := m.cfg.Field(field); err != nil {
		return false, err
	}

	var count int64
	err := m.slave.DB().WithContext(ctx).Table(m.Table()).
		Where(clause.Eq{Column: clause.Column{Name: field}, Value: value}).
		Where(clause.Neq{Column: clause.Column{Name: m.cfg.PrimaryKey}, Value: id}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Title renders the link title of obj. A title with {field} placeholders is
// expanded, a plain field name is replaced by that field value.
func (m *Model) Title(obj *object.Object) string {
	title := m.cfg.LinkTitle
	if title == "" {
		return strconv.FormatInt(obj.ID(), 10)
	}

	if strings.Contains(title, "{") {
		for _, name := range m.cfg.FieldNames() {
			var value string
			if m.cfg.Fields[name].IsMultiLink() {
				ids := obj.IDs(name)
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = strconv.FormatInt(id, 10)
				}
				value = strings.Join(parts, ", ")
			} else {
				value = obj.String(name)
			}
			title = strings.ReplaceAll(title, "{"+name+"}", value)
		}
		return title
	}

	if m.cfg.HasField(title) {
		return obj.String(title)
	}
	return title
}

// Migrate creates the engine tables and the entity tables when missing.
func (m *Model) Migrate(ctx context.Context) error {
	if err := m.master.Migrate(); err != nil {
		return err
	}
	return store.EnsureEntity(ctx, m.master, m.cfg, m.prefix)
}

// normalize converts stored column values to the field representations.
func (m *Model) normalize(row map[string]any) map[string]any {
	for k, v := range row {
		if k == m.cfg.PrimaryKey {
			if id, err := (&entity.Field{Name: k, Type: entity.TypeInteger}).Filter(v); err == nil {
				row[k] = id
			}
			continue
		}
		f, ok := m.cfg.Fields[k]
		if !ok {
			continue
		}
		if value, err := f.Filter(v); err == nil {
			row[k] = value
		}
	}
	return row
}
