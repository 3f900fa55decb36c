package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// CSRFDataKey is the reserved data key holding issued CSRF tokens.
	CSRFDataKey = "_csrf"

	csrfFieldCreated    = "created"
	csrfFieldExpiration = "expiration"
	csrfTokenBytes      = 32
)

// CSRFManager issues and consumes one-time CSRF tokens stored inside session data.
// Every change to the token set goes through [Store.SetData], so it reaches both tiers
// like any other mutation.
type CSRFManager struct {
	store  *Store
	random func([]byte) (int, error)
}

// NewCSRFManager returns a manager persisting tokens through store.
func NewCSRFManager(store *Store) *CSRFManager {
	return &CSRFManager{store: store, random: rand.Read}
}

// Issue generates a token valid for the session's CSRF lifetime and stores it in sess.
func (m *CSRFManager) Issue(ctx context.Context, sess *Session) (string, error) {
	if !sess.Attached() {
		return "", ErrUnattached
	}

	raw := make([]byte, csrfTokenBytes)
	if _, err := m.random(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	entry := map[string]any{
		csrfFieldCreated:    m.store.now().Unix(),
		csrfFieldExpiration: sess.csrfExpirationSeconds,
	}
	if err := m.store.SetData(ctx, sess, map[string]any{
		CSRFDataKey: map[string]any{token: entry},
	}, true); err != nil {
		return "", err
	}

	m.store.observer.ObserveEvent(EventCSRFIssued)
	return token, nil
}

// Validate reports whether token is a live token of sess and consumes it. The same pass
// purges every expired or malformed entry. When anything was consumed or purged, the
// remaining token set is written back to the session data; the reserved key stays present,
// possibly empty, so consuming tokens never empties the session on its own.
func (m *CSRFManager) Validate(ctx context.Context, sess *Session, token string) (bool, error) {
	if !sess.Attached() {
		return false, ErrUnattached
	}

	tokens, _ := sess.data[CSRFDataKey].(map[string]any)
	if len(tokens) == 0 {
		m.store.observer.ObserveEvent(EventCSRFRejected)
		return false, nil
	}

	now := m.store.now().Unix()
	remaining := make(map[string]any, len(tokens))
	matched := false
	changed := false

	for candidate, raw := range tokens {
		created, expiration, ok := csrfEntry(raw)
		if !ok || now-created >= expiration {
			changed = true
			m.store.observer.ObserveEvent(EventCSRFPurged)
			continue
		}
		if token != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			matched = true
			changed = true
			continue
		}
		remaining[candidate] = cloneValue(raw)
	}

	if changed {
		next := cloneMap(sess.data)
		next[CSRFDataKey] = remaining
		if err := m.store.SetData(ctx, sess, next, false); err != nil {
			return false, err
		}
	}

	if matched {
		m.store.observer.ObserveEvent(EventCSRFAccepted)
	} else {
		m.store.observer.ObserveEvent(EventCSRFRejected)
	}
	return matched, nil
}

func csrfEntry(raw any) (created, expiration int64, ok bool) {
	entry, isMap := raw.(map[string]any)
	if !isMap {
		return 0, 0, false
	}
	created, okCreated := asInt64(entry[csrfFieldCreated])
	expiration, okExpiration := asInt64(entry[csrfFieldExpiration])
	return created, expiration, okCreated && okExpiration
}
