package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	minIDBytes = 16

	DefaultIDBytes       = 32
	DefaultMaxCollisions = 16
	DefaultCheckAttempts = 5
	DefaultCheckBackoff  = 10 * time.Millisecond
)

// Locator reports where an id resides. [Store.StorageLocation] satisfies it.
type Locator func(ctx context.Context, id string) (Location, error)

// IDConfig controls id length and uniqueness checking.
type IDConfig struct {
	// Bytes is the number of random bytes per id (minimum 16).
	Bytes int
	// MaxCollisions bounds how many candidates may be found already in use.
	MaxCollisions int
	// CheckAttempts bounds how many times a failing uniqueness check is retried per candidate.
	CheckAttempts int
	// CheckBackoff is the first retry delay; it doubles on each retry.
	CheckBackoff time.Duration
}

// DefaultIDConfig returns the id generator defaults.
func DefaultIDConfig() IDConfig {
	return IDConfig{
		Bytes:         DefaultIDBytes,
		MaxCollisions: DefaultMaxCollisions,
		CheckAttempts: DefaultCheckAttempts,
		CheckBackoff:  DefaultCheckBackoff,
	}
}

// IDGenerator mints opaque ids that were absent from both tiers at generation time.
type IDGenerator struct {
	cfg      IDConfig
	locate   Locator
	observer Observer
	random   func([]byte) (int, error)
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewIDGenerator creates a generator that checks candidates with locate.
func NewIDGenerator(cfg IDConfig, locate Locator) *IDGenerator {
	if cfg.Bytes < minIDBytes {
		cfg.Bytes = DefaultIDBytes
	}
	if cfg.MaxCollisions <= 0 {
		cfg.MaxCollisions = DefaultMaxCollisions
	}
	if cfg.CheckAttempts <= 0 {
		cfg.CheckAttempts = DefaultCheckAttempts
	}
	if cfg.CheckBackoff < 0 {
		cfg.CheckBackoff = 0
	}
	return &IDGenerator{
		cfg:      cfg,
		locate:   locate,
		observer: nopObserver{},
		random:   rand.Read,
		sleep:    sleepContext,
	}
}

// Generate returns a fresh id. A candidate found in either tier is discarded and a new one
// drawn. A candidate whose location cannot be determined is retried with backoff; the
// generator never assumes absence, and fails with [ErrIDGeneration] once attempts run out.
func (g *IDGenerator) Generate(ctx context.Context) (string, error) {
	for collisions := 0; collisions <= g.cfg.MaxCollisions; collisions++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIDGeneration, err)
		}

		loc, err := g.check(ctx, candidate)
		if err != nil {
			return "", err
		}
		if loc == LocationAbsent {
			return candidate, nil
		}
		g.observer.ObserveEvent(EventIDCollision)
	}
	return "", fmt.Errorf("%w: %d consecutive collisions", ErrIDGeneration, g.cfg.MaxCollisions+1)
}

func (g *IDGenerator) candidate() (string, error) {
	raw := make([]byte, g.cfg.Bytes)
	if _, err := g.random(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (g *IDGenerator) check(ctx context.Context, candidate string) (Location, error) {
	backoff := g.cfg.CheckBackoff
	var lastErr error
	for attempt := 0; attempt < g.cfg.CheckAttempts; attempt++ {
		if attempt > 0 {
			g.observer.ObserveEvent(EventIDCheckRetry)
			if err := g.sleep(ctx, backoff); err != nil {
				return LocationAbsent, fmt.Errorf("%w: %v", ErrIDGeneration, err)
			}
			backoff *= 2
		}

		loc, err := g.locate(ctx, candidate)
		if err == nil {
			return loc, nil
		}
		lastErr = err
	}
	return LocationAbsent, fmt.Errorf("%w: uniqueness check failed after %d attempts: %v",
		ErrIDGeneration, g.cfg.CheckAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
