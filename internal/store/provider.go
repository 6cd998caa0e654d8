package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrUnknownDriver      = errors.New("unknown database driver")
)

// Connection describes one named logical database connection.
type Connection struct {
	Name   string
	Driver string
	DSN    string
	// Prefix is prepended to the tables of entities that request it.
	Prefix string
}

// Provider resolves a logical connection name to a Store.
type Provider interface {
	Provide(name string) (Store, error)
	Prefix(name string) (string, error)
}

// ConnectionProvider opens connections lazily on first use and keeps one
// long lived Store per connection name.
type ConnectionProvider struct {
	mu     sync.Mutex
	conns  map[string]Connection
	stores map[string]Store
	dbs    []*gorm.DB
}

var _ Provider = (*ConnectionProvider)(nil)

func NewConnectionProvider(conns ...Connection) *ConnectionProvider {
	p := &ConnectionProvider{
		conns:  make(map[string]Connection),
		stores: make(map[string]Store),
	}
	for _, c := range conns {
		p.conns[c.Name] = c
	}
	return p
}

// Register makes an already opened store available under name.
func (p *ConnectionProvider) Register(name string, store Store, prefix string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conns[name] = Connection{Name: name, Prefix: prefix}
	p.stores[name] = store
}

func (p *ConnectionProvider) Provide(name string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if store, ok := p.stores[name]; ok {
		return store, nil
	}

	conn, ok := p.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}

	db, err := Open(conn)
	if err != nil {
		return nil, err
	}

	store := NewGormStore(db)
	p.stores[name] = store
	p.dbs = append(p.dbs, db)
	logrus.Infof("connection %s opened with %s driver", name, conn.Driver)

	return store, nil
}

func (p *ConnectionProvider) Prefix(name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return conn.Prefix, nil
}

// Names returns the configured connection names.
func (p *ConnectionProvider) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.conns))
	for name := range p.conns {
		names = append(names, name)
	}
	return names
}

// Close closes the connections opened by the provider.
func (p *ConnectionProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, db := range p.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, sqlDB.Close())
	}
	p.dbs = nil
	p.stores = make(map[string]Store)

	return errors.Join(errs...)
}

// Open opens a gorm handle for conn.
func Open(conn Connection) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch conn.Driver {
	case "postgres":
		dialector = postgres.Open(conn.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(conn.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, conn.Driver)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}
