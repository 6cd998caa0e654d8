package ormstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/emrgen/ormstore/internal/cache"
	"github.com/emrgen/ormstore/internal/compress"
	"github.com/emrgen/ormstore/internal/config"
	"github.com/emrgen/ormstore/internal/crypt"
	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/event"
	"github.com/emrgen/ormstore/internal/jobs"
	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/orm"
	"github.com/emrgen/ormstore/internal/service"
	"github.com/emrgen/ormstore/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

type (
	Config   = config.Config
	Object   = object.Object
	Model    = orm.Model
	Event    = event.Event
	Payload  = event.Payload
	Handler  = event.Handler
	Version  = service.Version
	History  = model.History
	Registry = entity.Registry
)

var (
	ErrNotFound          = orm.ErrNotFound
	ErrReadOnly          = service.ErrReadOnly
	ErrMissingIdentifier = service.ErrMissingIdentifier
	ErrNotVersioned      = service.ErrNotVersioned
	ErrVersionNotFound   = service.ErrVersionNotFound
	ErrConfiguration     = entity.ErrConfiguration
)

// LoadConfig reads the engine configuration from the environment and .env.
func LoadConfig(files ...string) (*Config, error) {
	return config.LoadConfig(files...)
}

// WithActor marks the writes made with ctx as done by actorID.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return service.WithActor(ctx, actorID)
}

// Engine is the in process entry point: it owns the connections, the
// models of every configured entity and the object store writing them.
type Engine struct {
	provider *store.ConnectionProvider
	registry *entity.Registry
	models   *orm.Factory
	store    *service.ObjectStore
	cfg      *Config
	closers  []io.Closer
	producer *kafka.Producer
}

// Open loads the entity configurations of cfg.ObjectsDir and wires the engine.
func Open(cfg *Config) (*Engine, error) {
	registry, err := entity.LoadDir(cfg.ObjectsDir)
	if err != nil {
		return nil, err
	}
	return OpenRegistry(cfg, registry, tally.NoopScope)
}

// OpenRegistry wires the engine for an already loaded registry and
// reports the object store metrics to scope.
func OpenRegistry(cfg *Config, registry *entity.Registry, scope tally.Scope) (*Engine, error) {
	e := &Engine{
		provider: store.NewConnectionProvider(cfg.Connections...),
		registry: registry,
		cfg:      cfg,
	}

	opts := orm.Options{CacheTTL: cfg.CacheTTL}
	if cfg.RedisAddr != "" {
		r := cache.NewRedis(cfg.RedisAddr)
		e.closers = append(e.closers, r)
		opts.Cache = r
	}
	e.models = orm.NewFactory(registry, e.provider, opts)

	codec, err := compress.Get(cfg.Compression)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}

	var cipher *crypt.Cipher
	if cfg.EncryptionKey != "" {
		cipher, err = crypt.NewCipher(cfg.EncryptionKey, cfg.EncryptionSalt)
		if err != nil {
			return nil, errors.Join(err, e.Close())
		}
	}

	events := event.NewManager()
	if cfg.KafkaBrokers != "" {
		e.producer, err = event.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("kafka producer: %w", err), e.Close())
		}
		go event.LogDeliveries(e.producer.Events())
		event.NewKafkaForwarder(e.producer, cfg.KafkaTopic).Register(events)
		logrus.Infof("forwarding object events to kafka topic %s", cfg.KafkaTopic)
	}

	e.store = service.NewObjectStore(service.Options{
		Models:   e.models,
		Events:   events,
		Cipher:   cipher,
		Compress: codec,
		Scope:    scope,
	})

	return e, nil
}

// Migrate creates the engine tables and the tables of every entity.
func (e *Engine) Migrate(ctx context.Context) error {
	models, err := e.models.Models()
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", m.Name(), err)
		}
		logrus.Infof("entity %s migrated", m.Name())
	}
	return nil
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Model returns the read side of the named entity.
func (e *Engine) Model(name string) (*Model, error) {
	return e.models.Model(name)
}

// On registers a handler for an event. With no object names it runs for
// every entity.
func (e *Engine) On(ev Event, h Handler, objects ...string) {
	if len(objects) == 0 {
		e.store.Events().On(ev, h)
		return
	}
	for _, name := range objects {
		e.store.Events().OnObject(name, ev, h)
	}
}

func (e *Engine) New(name string) (*Object, error) {
	return e.store.New(name)
}

func (e *Engine) Load(ctx context.Context, name string, id int64) (*Object, error) {
	return e.store.Load(ctx, name, id)
}

func (e *Engine) Insert(ctx context.Context, obj *Object) (int64, error) {
	return e.store.Insert(ctx, obj)
}

func (e *Engine) Update(ctx context.Context, obj *Object) (int64, error) {
	return e.store.Update(ctx, obj)
}

func (e *Engine) Delete(ctx context.Context, obj *Object) error {
	return e.store.Delete(ctx, obj)
}

func (e *Engine) DeleteObjects(ctx context.Context, name string, ids []int64) error {
	return e.store.DeleteObjects(ctx, name, ids)
}

// Publish publishes obj, applying the snapshot of version first when it is positive.
func (e *Engine) Publish(ctx context.Context, obj *Object, version int64) error {
	return e.store.Publish(ctx, obj, version)
}

func (e *Engine) Unpublish(ctx context.Context, obj *Object) error {
	return e.store.Unpublish(ctx, obj)
}

func (e *Engine) AddVersion(ctx context.Context, obj *Object) (int64, error) {
	return e.store.AddVersion(ctx, obj)
}

func (e *Engine) Versions(ctx context.Context, name string, id int64) ([]*Version, error) {
	return e.store.Versions(ctx, name, id)
}

func (e *Engine) Version(ctx context.Context, name string, id, number int64) (*Version, error) {
	return e.store.Version(ctx, name, id, number)
}

func (e *Engine) History(ctx context.Context, name string, id int64) ([]*History, error) {
	return e.store.History(ctx, name, id)
}

// Jobs returns the background jobs of the engine for a task executor.
func (e *Engine) Jobs() []jobs.CronJob {
	return []jobs.CronJob{jobs.NewLinkSweeper(e.cfg.SweepSchedule, e.models)}
}

// Close flushes pending events and closes the connections.
func (e *Engine) Close() error {
	if e.producer != nil {
		if left := e.producer.Flush(int((5 * time.Second).Milliseconds())); left > 0 {
			logrus.Warnf("%d object events were not delivered", left)
		}
		e.producer.Close()
		e.producer = nil
	}

	errs := []error{e.provider.Close()}
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil

	return errors.Join(errs...)
}
