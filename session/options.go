package session

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Option configures a [Store].
type Option func(*Store)

// WithTable sets the durable table holding session rows.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithExpiration sets the idle lifetime, in seconds, applied to sessions.
func WithExpiration(seconds int64) Option {
	return func(s *Store) {
		if seconds > 0 {
			s.expirationSeconds = seconds
		}
	}
}

// WithCSRFExpiration sets the lifetime, in seconds, of issued CSRF tokens.
func WithCSRFExpiration(seconds int64) Option {
	return func(s *Store) {
		if seconds > 0 {
			s.csrfExpirationSeconds = seconds
		}
	}
}

// WithCookie sets the cookie attributes carried by sessions.
func WithCookie(cookie CookieOptions) Option {
	return func(s *Store) {
		s.cookie = cookie
	}
}

// WithExecutor sets the executor running durable write-back tasks. The default runs each
// task on its own goroutine.
func WithExecutor(exec Executor) Option {
	return func(s *Store) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithLogger sets the logger for swallowed faults.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the receiver of store events.
func WithObserver(observer Observer) Option {
	return func(s *Store) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDConfig configures the id generator.
func WithIDConfig(cfg IDConfig) Option {
	return func(s *Store) {
		s.idConfig = cfg
	}
}

// goExecutor spawns one goroutine per task.
type goExecutor struct{}

func (goExecutor) Submit(task Task) error {
	go task(context.Background())
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
