package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/MrEthical07/goSession/internal/confloader"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/writeback"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tier/badgerstore"
	"github.com/MrEthical07/goSession/tier/rediscache"
)

// Config is the complete engine configuration. Field tags name the keys read by
// [LoadConfig] from YAML files and GOSESSION_ environment variables.
type Config struct {
	Session   SessionConfig   `koanf:"session"`
	Cookie    CookieConfig    `koanf:"cookie"`
	IDs       IDConfig        `koanf:"ids"`
	WriteBack WriteBackConfig `koanf:"write_back"`
	Cache     CacheConfig     `koanf:"cache"`
	Durable   DurableConfig   `koanf:"durable"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes and the durable table.
type SessionConfig struct {
	Table                 string `koanf:"table"`
	ExpirationSeconds     int64  `koanf:"expiration_seconds"`
	CSRFExpirationSeconds int64  `koanf:"csrf_expiration_seconds"`
}

// CookieConfig carries the cookie attributes handed to the HTTP layer.
type CookieConfig struct {
	Name     string `koanf:"name"`
	HTTPOnly bool   `koanf:"http_only"`
	Secure   bool   `koanf:"secure"`
	Path     string `koanf:"path"`
	Domain   string `koanf:"domain"`
}

// IDConfig controls session id generation.
type IDConfig struct {
	Bytes         int           `koanf:"bytes"`
	MaxCollisions int           `koanf:"max_collisions"`
	CheckAttempts int           `koanf:"check_attempts"`
	CheckBackoff  time.Duration `koanf:"check_backoff"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// WriteBackConfig sizes the pool running durable write-backs.
type WriteBackConfig struct {
	Workers     int           `koanf:"workers"`
	BufferSize  int           `koanf:"buffer_size"`
	DropIfFull  bool          `koanf:"drop_if_full"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// CacheConfig configures the cache tier built by [Builder.Build].
type CacheConfig struct {
	// RedisPrefix namespaces keys when a Redis client is supplied.
	RedisPrefix string `koanf:"redis_prefix"`
	// TTLGrace is added to the session expiration to form Redis key TTLs.
	TTLGrace time.Duration `koanf:"ttl_grace"`
	// MemorySize bounds the in-process cache used without Redis.
	MemorySize int `koanf:"memory_size"`
}

// DurableConfig configures the Badger durable tier built when no durable tier is supplied.
type DurableConfig struct {
	Dir         string        `koanf:"dir"`
	SyncWrites  bool          `koanf:"sync_writes"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	cookie := session.DefaultCookieOptions()
	ids := session.DefaultIDConfig()

	return Config{
		Session: SessionConfig{
			Table:                 session.DefaultTable,
			ExpirationSeconds:     session.DefaultExpirationSeconds,
			CSRFExpirationSeconds: session.DefaultCSRFExpirationSeconds,
		},
		Cookie: CookieConfig{
			Name:     cookie.Name,
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
			Path:     cookie.Path,
			Domain:   cookie.Domain,
		},
		IDs: IDConfig{
			Bytes:         ids.Bytes,
			MaxCollisions: ids.MaxCollisions,
			CheckAttempts: ids.CheckAttempts,
			CheckBackoff:  ids.CheckBackoff,
		},
		WriteBack: WriteBackConfig{
			Workers:    writeback.DefaultWorkers,
			BufferSize: writeback.DefaultBufferSize,
		},
		Cache: CacheConfig{
			RedisPrefix: rediscache.DefaultPrefix,
			TTLGrace:    rediscache.DefaultGrace,
		},
		Durable: DurableConfig{
			GCInterval:  10 * time.Minute,
			GCThreshold: 0.5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// LoadConfig returns [DefaultConfig] overlaid with the YAML file at path (skipped when
// empty) and GOSESSION_ environment variables, then validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if strings.TrimSpace(c.Session.Table) == "" {
		return errors.New("Session Table must not be empty")
	}
	if c.Session.ExpirationSeconds <= 0 {
		return errors.New("Session ExpirationSeconds must be > 0")
	}
	if c.Session.CSRFExpirationSeconds <= 0 {
		return errors.New("Session CSRFExpirationSeconds must be > 0")
	}

	// Cookie
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if strings.IndexFunc(c.Cookie.Name, unicode.IsSpace) >= 0 {
		return errors.New("Cookie Name must not contain whitespace")
	}

	// IDs
	if c.IDs.Bytes < 16 {
		return errors.New("IDs Bytes must be >= 16")
	}
	if c.IDs.MaxCollisions < 0 {
		return errors.New("IDs MaxCollisions must be >= 0")
	}
	if c.IDs.CheckAttempts < 1 {
		return errors.New("IDs CheckAttempts must be >= 1")
	}
	if c.IDs.CheckBackoff < 0 {
		return errors.New("IDs CheckBackoff must be >= 0")
	}

	// Write-back
	if c.WriteBack.Workers < 1 {
		return errors.New("WriteBack Workers must be >= 1")
	}
	if c.WriteBack.BufferSize < 0 {
		return errors.New("WriteBack BufferSize must be >= 0")
	}
	if c.WriteBack.TaskTimeout < 0 {
		return errors.New("WriteBack TaskTimeout must be >= 0")
	}

	// Cache
	if strings.TrimSpace(c.Cache.RedisPrefix) == "" {
		return errors.New("Cache RedisPrefix must not be empty")
	}
	if c.Cache.TTLGrace < 0 {
		return errors.New("Cache TTLGrace must be >= 0")
	}
	if c.Cache.MemorySize < 0 {
		return errors.New("Cache MemorySize must be >= 0")
	}

	// Durable
	if c.Durable.GCInterval < 0 {
		return errors.New("Durable GCInterval must be >= 0")
	}
	if c.Durable.GCThreshold < 0 || c.Durable.GCThreshold >= 1 {
		return errors.New("Durable GCThreshold must be in [0, 1)")
	}

	// Log
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("Log Format %q must be 'text' or 'json'", c.Log.Format)
	}

	return nil
}

func (c CookieConfig) options() session.CookieOptions {
	return session.CookieOptions{
		Name:     c.Name,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		Path:     c.Path,
		Domain:   c.Domain,
	}
}

func (c IDConfig) options() session.IDConfig {
	return session.IDConfig{
		Bytes:         c.Bytes,
		MaxCollisions: c.MaxCollisions,
		CheckAttempts: c.CheckAttempts,
		CheckBackoff:  c.CheckBackoff,
	}
}

func (c WriteBackConfig) options() writeback.Config {
	return writeback.Config{
		Workers:     c.Workers,
		BufferSize:  c.BufferSize,
		DropIfFull:  c.DropIfFull,
		TaskTimeout: c.TaskTimeout,
	}
}

func (c DurableConfig) options() badgerstore.Config {
	return badgerstore.Config{
		Dir:         c.Dir,
		SyncWrites:  c.SyncWrites,
		GCInterval:  c.GCInterval,
		GCThreshold: c.GCThreshold,
	}
}
