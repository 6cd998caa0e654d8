package tester

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/ormstore/internal/cache"
	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// Connection is the connection name used by every fixture entity.
	Connection = "default"
	// ReplicaConnection points at the same database and is used as a slave.
	ReplicaConnection = "replica"
)

// Setup opens a fresh sqlite database in a temporary directory and migrates
// the engine tables.
func Setup(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "orm.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := model.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

// Env is a migrated database with the fixture entities and their tables.
type Env struct {
	DB       *gorm.DB
	Store    *store.GormStore
	Provider *store.ConnectionProvider
	Registry *entity.Registry
}

// NewEnv sets up a database, registers the fixture entities and creates
// their tables.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	db := Setup(t)
	s := store.NewGormStore(db)

	provider := store.NewConnectionProvider()
	provider.Register(Connection, s, "")
	provider.Register(ReplicaConnection, s, "")

	registry := Registry(t)
	for _, name := range registry.Names() {
		cfg, err := registry.Get(name)
		if err != nil {
			t.Fatalf("fixture %s: %v", name, err)
		}
		if err := store.EnsureEntity(context.Background(), s, cfg, ""); err != nil {
			t.Fatalf("fixture %s: %v", name, err)
		}
	}

	return &Env{
		DB:       db,
		Store:    s,
		Provider: provider,
		Registry: registry,
	}
}

// Config returns the configuration of a fixture entity.
func (e *Env) Config(t testing.TB, name string) *entity.Config {
	t.Helper()

	cfg, err := e.Registry.Get(name)
	if err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return cfg
}

// Redis starts an in-process redis server and returns a cache adapter on it.
func Redis(t testing.TB) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	r := cache.NewRedis(srv.Addr())
	t.Cleanup(func() {
		_ = r.Close()
	})

	return r, srv
}
