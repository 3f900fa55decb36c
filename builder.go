package goSession

import (
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/writeback"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tier/badgerstore"
	"github.com/MrEthical07/goSession/tier/memory"
	"github.com/MrEthical07/goSession/tier/rediscache"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. It is configured during initialization and used once.
//
// Without [Builder.WithCache] or [Builder.WithRedis] the engine caches in process; without
// [Builder.WithDurable] it opens a Badger durable tier from Config.Durable (in memory when
// Dir is empty).
type Builder struct {
	config Config
	redis  redis.UniversalClient

	cache    session.Cache
	durable  session.Durable
	executor session.Executor
	logger   *slog.Logger
	clock    func() time.Time

	built bool
}

// New returns a builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis selects a Redis cache tier on client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCache supplies a cache tier. It takes precedence over [Builder.WithRedis].
func (b *Builder) WithCache(cache session.Cache) *Builder {
	b.cache = cache
	return b
}

// WithDurable supplies a durable tier. The engine does not close it.
func (b *Builder) WithDurable(durable session.Durable) *Builder {
	b.durable = durable
	return b
}

// WithExecutor supplies the write-back executor. The engine does not close it.
func (b *Builder) WithExecutor(exec session.Executor) *Builder {
	b.executor = exec
	return b
}

// WithLogger supplies the logger. By default one is built from Config.Log.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock used for session timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the resolve latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the tiers, write-back pool, metrics, and
// store into an [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		level, _ := logging.ParseLevel(cfg.Log.Level)
		logger = logging.New(level, cfg.Log.Format)
	}

	engine := &Engine{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CACHE TIER --------
	cache := b.cache
	switch {
	case cache != nil:
	case b.redis != nil:
		ttl := rediscache.TTLFor(cfg.Session.ExpirationSeconds, cfg.Cache.TTLGrace)
		cache = rediscache.New(b.redis, cfg.Cache.RedisPrefix, ttl)
	default:
		cache = memory.NewCache(cfg.Cache.MemorySize)
	}

	// -------- DURABLE TIER --------
	durable := b.durable
	if durable == nil {
		db, err := badgerstore.Open(cfg.Durable.options(), logger)
		if err != nil {
			return nil, err
		}
		engine.badger = db
		durable = db
	}

	// -------- WRITE-BACK --------
	exec := b.executor
	if exec == nil {
		engine.pool = writeback.NewPool(cfg.WriteBack.options(), logger)
		exec = engine.pool
	}

	opts := []session.Option{
		session.WithTable(cfg.Session.Table),
		session.WithExpiration(cfg.Session.ExpirationSeconds),
		session.WithCSRFExpiration(cfg.Session.CSRFExpirationSeconds),
		session.WithCookie(cfg.Cookie.options()),
		session.WithIDConfig(cfg.IDs.options()),
		session.WithExecutor(exec),
		session.WithLogger(logger),
		session.WithObserver(engine.metrics),
	}
	if b.clock != nil {
		opts = append(opts, session.WithClock(b.clock))
	}

	store, err := session.NewStore(cache, durable, opts...)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.store = store
	engine.csrf = session.NewCSRFManager(store)

	b.built = true

	return engine, nil
}
