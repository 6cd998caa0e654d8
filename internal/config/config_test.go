package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emrgen/ormstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"ORM_OBJECTS_DIR":         "/etc/orm/objects",
		"ORM_CONNECTIONS":         "default, archive",
		"ORM_DB_DEFAULT_DRIVER":   "postgres",
		"ORM_DB_DEFAULT_DSN":      "host=db user=orm",
		"ORM_DB_ARCHIVE_DSN":      "archive.db",
		"ORM_DB_ARCHIVE_PREFIX":   "arc_",
		"ORM_CACHE_TTL":           "90s",
		"ORM_VERSION_COMPRESSION": "brotli",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/etc/orm/objects", cfg.ObjectsDir)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "brotli", cfg.Compression)
	assert.Equal(t, "orm.events", cfg.KafkaTopic)
	assert.Equal(t, []store.Connection{
		{Name: "default", Driver: "postgres", DSN: "host=db user=orm"},
		{Name: "archive", Driver: "sqlite", DSN: "archive.db", Prefix: "arc_"},
	}, cfg.Connections)
}

func TestFromEnv_Errors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{}))
	assert.ErrorContains(t, err, "ORM_DB_DEFAULT_DSN")

	_, err = FromEnv(env(map[string]string{
		"ORM_DB_DEFAULT_DSN": "orm.db",
		"ORM_CACHE_TTL":      "soon",
	}))
	assert.ErrorContains(t, err, "ORM_CACHE_TTL")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "orm.env")
	require.NoError(t, os.WriteFile(file, []byte("ORM_DB_DEFAULT_DSN=file.db\nORM_KAFKA_TOPIC=from-file\n"), 0o600))

	// variables already set win over the file
	t.Setenv("ORM_KAFKA_TOPIC", "from-env")
	t.Setenv("ORM_DB_DEFAULT_DSN", "")
	require.NoError(t, os.Unsetenv("ORM_DB_DEFAULT_DSN"))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.KafkaTopic)
	require.Len(t, cfg.Connections, 1)
	assert.Equal(t, "file.db", cfg.Connections[0].DSN)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
