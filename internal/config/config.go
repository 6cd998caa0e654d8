package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/emrgen/ormstore/internal/store"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const DefaultConnection = "default"

// Config is the process configuration of the engine.
type Config struct {
	// ObjectsDir holds one YAML file per entity.
	ObjectsDir  string
	Connections []store.Connection

	// RedisAddr enables the cached reads when set.
	RedisAddr string
	CacheTTL  time.Duration

	EncryptionKey  string
	EncryptionSalt string
	// Compression names the codec of new version snapshots.
	Compression string

	// KafkaBrokers enables forwarding of object events when set.
	KafkaBrokers string
	KafkaTopic   string

	SweepSchedule string
}

// LoadConfig reads the configuration from the environment. The given env
// files, or .env when none is given, are loaded first without overriding
// variables that are already set.
func LoadConfig(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logrus.Debugf("no .env file loaded")
	}

	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ObjectsDir:     getenv("ORM_OBJECTS_DIR"),
		RedisAddr:      getenv("ORM_REDIS_ADDR"),
		EncryptionKey:  getenv("ORM_ENCRYPTION_KEY"),
		EncryptionSalt: getenv("ORM_ENCRYPTION_SALT"),
		Compression:    getenv("ORM_VERSION_COMPRESSION"),
		KafkaBrokers:   getenv("ORM_KAFKA_BROKERS"),
		KafkaTopic:     getenv("ORM_KAFKA_TOPIC"),
		SweepSchedule:  getenv("ORM_SWEEP_SCHEDULE"),
	}

	if cfg.ObjectsDir == "" {
		cfg.ObjectsDir = "objects"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "orm.events"
	}

	if ttl := getenv("ORM_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("ORM_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}

	names := getenv("ORM_CONNECTIONS")
	if names == "" {
		names = DefaultConnection
	}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		key := "ORM_DB_" + strings.ToUpper(name) + "_"
		conn := store.Connection{
			Name:   name,
			Driver: getenv(key + "DRIVER"),
			DSN:    getenv(key + "DSN"),
			Prefix: getenv(key + "PREFIX"),
		}
		if conn.Driver == "" {
			conn.Driver = "sqlite"
		}
		if conn.DSN == "" {
			return nil, fmt.Errorf("%sDSN is not set", key)
		}
		cfg.Connections = append(cfg.Connections, conn)
	}

	return cfg, nil
}
