package goSession

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrEthical07/goSession/internal/writeback"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tier/badgerstore"
)

// Engine is the session facade built by [Builder.Build]. Its methods are safe for
// concurrent use; each [session.Session] they return belongs to the calling request.
type Engine struct {
	config  Config
	store   *session.Store
	csrf    *session.CSRFManager
	metrics *Metrics
	logger  *slog.Logger

	// Owned resources, closed by Close.
	pool   *writeback.Pool
	badger *badgerstore.Store

	closeOnce sync.Once
	closeErr  error
}

// Close drains pending write-backs and releases the tiers the engine opened itself.
// Tiers and executors supplied to the [Builder] are left open.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		if e.pool != nil {
			e.pool.Close()
		}
		if e.badger != nil {
			e.closeErr = e.badger.Close()
		}
	})
	return e.closeErr
}

// Store exposes the underlying session store.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// CookieOptions returns the cookie attributes the HTTP layer should apply.
func (e *Engine) CookieOptions() session.CookieOptions {
	return e.config.Cookie.options()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// WriteBackDropped returns how many write-backs the engine-owned pool refused.
func (e *Engine) WriteBackDropped() uint64 {
	if e == nil || e.pool == nil {
		return 0
	}
	return e.pool.Dropped()
}

// WriteBackPending returns how many write-backs are queued in the engine-owned pool.
func (e *Engine) WriteBackPending() int {
	if e == nil || e.pool == nil {
		return 0
	}
	return e.pool.Pending()
}

// Resolve returns the live session for id, or a fresh one when id is empty, unknown, or
// expired.
func (e *Engine) Resolve(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Resolve(ctx, id)
}

// Peek reads the session stored under id without touching or expiring it.
func (e *Engine) Peek(ctx context.Context, id string) (*session.Session, bool, error) {
	return e.store.Peek(ctx, id)
}

// Create mints a session holding data.
func (e *Engine) Create(ctx context.Context, data map[string]any) (*session.Session, error) {
	return e.store.Create(ctx, data)
}

// Save re-stamps sess and persists it.
func (e *Engine) Save(ctx context.Context, sess *session.Session) error {
	return e.store.Save(ctx, sess)
}

// SetData replaces or deep-merges data into sess.
func (e *Engine) SetData(ctx context.Context, sess *session.Session, data map[string]any, merge bool) error {
	return e.store.SetData(ctx, sess, data, merge)
}

// Set stores value under key in sess.
func (e *Engine) Set(ctx context.Context, sess *session.Session, key string, value any) error {
	return e.store.Set(ctx, sess, key, value)
}

// Remove deletes key from sess.
func (e *Engine) Remove(ctx context.Context, sess *session.Session, key string) error {
	return e.store.Remove(ctx, sess, key)
}

// Delete removes sess from both tiers and detaches it.
func (e *Engine) Delete(ctx context.Context, sess *session.Session) error {
	return e.store.Delete(ctx, sess)
}

// StorageLocation reports which tier holds id.
func (e *Engine) StorageLocation(ctx context.Context, id string) (session.Location, error) {
	return e.store.StorageLocation(ctx, id)
}

// IssueCSRF issues a one-time CSRF token bound to sess.
func (e *Engine) IssueCSRF(ctx context.Context, sess *session.Session) (string, error) {
	return e.csrf.Issue(ctx, sess)
}

// ValidateCSRF consumes token if it is live on sess.
func (e *Engine) ValidateCSRF(ctx context.Context, sess *session.Session, token string) (bool, error) {
	return e.csrf.Validate(ctx, sess, token)
}
