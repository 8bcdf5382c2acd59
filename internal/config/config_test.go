package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	seismic "github.com/qri-io/seismic-go"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageLocal, cfg.Storage.Kind)
	assert.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seiscube.yaml")
	data := `
server:
  addr: ":9000"
  request_timeout: 5s
storage:
  kind: memory
worker:
  transfers: 2
  task_size: 3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, StorageMemory, cfg.Storage.Kind)
	assert.Equal(t, 2, cfg.Worker.Transfers)
	assert.Equal(t, 3, cfg.Worker.TaskSize)
	// untouched sections keep their defaults
	assert.Equal(t, 16, cfg.Worker.Queue)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seiscube.yaml")
	cfg := DefaultConfig()
	cfg.Worker.TaskSize = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Worker.TaskSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("endpoint switches to http storage", func(t *testing.T) {
		t.Setenv("SEISCUBE_STORAGE_ENDPOINT", "https://example.blob.core.windows.net")
		t.Setenv("SEISCUBE_STORAGE_TOKEN", "tok")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, StorageHTTP, cfg.Storage.Kind)
		assert.Equal(t, "https://example.blob.core.windows.net", cfg.Storage.Endpoint)
		assert.Equal(t, "tok", cfg.Storage.Token)
	})

	t.Run("endpoint wins over root", func(t *testing.T) {
		t.Setenv("SEISCUBE_STORAGE_ROOT", "/srv/cubes")
		t.Setenv("SEISCUBE_STORAGE_ENDPOINT", "https://example")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, StorageHTTP, cfg.Storage.Kind)
		assert.Equal(t, "/srv/cubes", cfg.Storage.Root)
	})

	t.Run("auth", func(t *testing.T) {
		t.Setenv("SEISCUBE_AUTH_ISSUER", "https://login.example.com/tenant/v2.0")
		t.Setenv("SEISCUBE_AUTH_AUDIENCE", "seiscube")
		t.Setenv("SEISCUBE_AUTH_JWKS_URL", "https://login.example.com/keys")

		cfg := DefaultConfig()
		assert.False(t, cfg.Server.Auth.Enabled())
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Server.Auth.Enabled())
		assert.Equal(t, "seiscube", cfg.Server.Auth.Audience)
		assert.Equal(t, "https://login.example.com/keys", cfg.Server.Auth.JWKSURL)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("addr and level", func(t *testing.T) {
		t.Setenv("SEISCUBE_ADDR", ":1234")
		t.Setenv("SEISCUBE_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, ":1234", cfg.Server.Addr)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"storage kind":  func(c *Config) { c.Storage.Kind = "s3" },
		"local root":    func(c *Config) { c.Storage.Root = "" },
		"http endpoint": func(c *Config) { c.Storage.Kind = StorageHTTP },
		"transfers":     func(c *Config) { c.Worker.Transfers = 0 },
		"task size":     func(c *Config) { c.Worker.TaskSize = -1 },
		"queue":         func(c *Config) { c.Worker.Queue = -1 },
		"log level":     func(c *Config) { c.Logging.Level = "loud" },
		"auth issuer":   func(c *Config) { c.Server.Auth.Audience = "api" },
		"auth audience": func(c *Config) { c.Server.Auth.Issuer = "https://login.example.com" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Root = t.TempDir()
	s, err := cfg.Store()
	require.NoError(t, err)
	assert.Equal(t, seismic.LocalStoreType, s.Type())

	cfg.Storage.Kind = StorageHTTP
	cfg.Storage.Endpoint = "http://localhost:10000/devstoreaccount1"
	s, err = cfg.Store()
	require.NoError(t, err)
	assert.Equal(t, seismic.HTTPStoreType, s.Type())

	cfg.Storage.Kind = StorageMemory
	s, err = cfg.Store()
	require.NoError(t, err)
	assert.Equal(t, seismic.MemoryStoreType, s.Type())
}

func TestLogger(t *testing.T) {
	cfg := DefaultConfig()
	l, err := cfg.Logger(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	cfg.Logging.Level = "warn"
	l, err = cfg.Logger(false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}
