package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	seismic "github.com/qri-io/seismic-go"
)

// Config holds all seiscube configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string     `yaml:"addr"`
	RequestTimeout string     `yaml:"request_timeout"`
	Auth           AuthConfig `yaml:"auth"`
}

// AuthConfig enables bearer token validation when Issuer is set.
type AuthConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	// Discovered from the issuer when empty
	JWKSURL string `yaml:"jwks_url"`
}

// Enabled reports whether requests must carry a valid token.
func (a AuthConfig) Enabled() bool { return a.Issuer != "" }

// StorageConfig selects where manifests and fragments live.
type StorageConfig struct {
	Kind     string `yaml:"kind"` // memory, local, http
	Root     string `yaml:"root"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// WorkerConfig configures the slice worker.
type WorkerConfig struct {
	// Concurrent fragment fetches per task
	Transfers int `yaml:"transfers"`
	// Max number of fragments answered by one partial result
	TaskSize int `yaml:"task_size"`
	// Buffered tasks waiting for the worker
	Queue int `yaml:"queue"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Storage kinds
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageHTTP   = "http"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: "60s",
		},
		Storage: StorageConfig{
			Kind: StorageLocal,
			Root: "data",
		},
		Worker: WorkerConfig{
			Transfers: seismic.DefaultTransfers,
			TaskSize:  10,
			Queue:     16,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SEISCUBE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if root := os.Getenv("SEISCUBE_STORAGE_ROOT"); root != "" {
		c.Storage.Root = root
		c.Storage.Kind = StorageLocal
	}
	// an endpoint wins over a local root
	if endpoint := os.Getenv("SEISCUBE_STORAGE_ENDPOINT"); endpoint != "" {
		c.Storage.Endpoint = endpoint
		c.Storage.Kind = StorageHTTP
	}
	if token := os.Getenv("SEISCUBE_STORAGE_TOKEN"); token != "" {
		c.Storage.Token = token
	}
	if issuer := os.Getenv("SEISCUBE_AUTH_ISSUER"); issuer != "" {
		c.Server.Auth.Issuer = issuer
	}
	if audience := os.Getenv("SEISCUBE_AUTH_AUDIENCE"); audience != "" {
		c.Server.Auth.Audience = audience
	}
	if jwks := os.Getenv("SEISCUBE_AUTH_JWKS_URL"); jwks != "" {
		c.Server.Auth.JWKSURL = jwks
	}
	if level := os.Getenv("SEISCUBE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetRequestTimeout returns the HTTP request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Kind {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Root == "" {
			return fmt.Errorf("local storage needs a root directory")
		}
	case StorageHTTP:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("http storage needs an endpoint (set SEISCUBE_STORAGE_ENDPOINT)")
		}
	default:
		return fmt.Errorf("invalid storage kind: %q (valid: memory, local, http)", c.Storage.Kind)
	}

	if a := c.Server.Auth; (a.Audience != "" || a.JWKSURL != "") && a.Issuer == "" {
		return fmt.Errorf("server.auth needs an issuer (set SEISCUBE_AUTH_ISSUER)")
	}
	if a := c.Server.Auth; a.Enabled() && a.Audience == "" {
		return fmt.Errorf("server.auth needs an audience (set SEISCUBE_AUTH_AUDIENCE)")
	}

	if c.Worker.Transfers < 1 {
		return fmt.Errorf("worker.transfers must be positive, got %d", c.Worker.Transfers)
	}
	if c.Worker.TaskSize < 1 {
		return fmt.Errorf("worker.task_size must be positive, got %d", c.Worker.TaskSize)
	}
	if c.Worker.Queue < 0 {
		return fmt.Errorf("worker.queue must not be negative, got %d", c.Worker.Queue)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Store builds the configured store.
func (c *Config) Store() (seismic.Store, error) {
	switch c.Storage.Kind {
	case StorageMemory:
		return seismic.NewMemoryStore(), nil
	case StorageLocal:
		return seismic.NewLocalStore(c.Storage.Root)
	case StorageHTTP:
		return seismic.NewHTTPStore(c.Storage.Endpoint, c.Storage.Token, nil), nil
	default:
		return nil, fmt.Errorf("invalid storage kind: %q", c.Storage.Kind)
	}
}

// Logger builds a production zap logger at the configured level.
// verbose forces debug.
func (c *Config) Logger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
