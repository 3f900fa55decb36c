package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store resolves, creates, mutates, expires and deletes sessions across a cache tier and a
// durable tier.
//
// The cache tier is written through on every mutation. The durable tier is written
// synchronously for non-empty creates and for deletes, and through the configured
// [Executor] for saves and timestamp refreshes.
type Store struct {
	cache   Cache
	durable Durable
	table   string

	expirationSeconds     int64
	csrfExpirationSeconds int64
	cookie                CookieOptions

	exec     Executor
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	idConfig IDConfig
	ids      *IDGenerator
	writes   *writeTracker
}

// NewStore creates a [Store] over the given tiers.
func NewStore(cache Cache, durable Durable, opts ...Option) (*Store, error) {
	if cache == nil {
		return nil, errors.New("session: cache tier required")
	}
	if durable == nil {
		return nil, errors.New("session: durable tier required")
	}

	s := &Store{
		cache:                 cache,
		durable:               durable,
		table:                 DefaultTable,
		expirationSeconds:     DefaultExpirationSeconds,
		csrfExpirationSeconds: DefaultCSRFExpirationSeconds,
		cookie:                DefaultCookieOptions(),
		exec:                  goExecutor{},
		logger:                discardLogger(),
		observer:              nopObserver{},
		now:                   time.Now,
		idConfig:              DefaultIDConfig(),
		writes:                newWriteTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ids = NewIDGenerator(s.idConfig, s.locateCandidate)
	s.ids.observer = s.observer

	return s, nil
}

// Table returns the durable table name.
func (s *Store) Table() string { return s.table }

// ExpirationSeconds returns the idle lifetime applied to new session views.
func (s *Store) ExpirationSeconds() int64 { return s.expirationSeconds }

// CSRFExpirationSeconds returns the lifetime applied to issued CSRF tokens.
func (s *Store) CSRFExpirationSeconds() int64 { return s.csrfExpirationSeconds }

// Cookie returns the cookie attributes carried by sessions.
func (s *Store) Cookie() CookieOptions { return s.cookie }

// Resolve returns the session stored under id. An empty id, an id neither tier knows, and
// an id idle for longer than the expiration all yield a freshly created session with a
// new id; the expired session is deleted first.
//
// A live session is re-stamped. When the stamp changes, the cache entry is refreshed
// synchronously and, for non-empty data, a durable upsert is scheduled.
func (s *Store) Resolve(ctx context.Context, id string) (*Session, error) {
	start := time.Now()
	defer func() { s.observer.ObserveResolve(time.Since(start)) }()

	now := s.now().Unix()
	if id == "" {
		return s.Create(ctx, nil)
	}

	rec, from, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if from == LocationAbsent {
		s.observer.ObserveEvent(EventResolveMiss)
		return s.Create(ctx, nil)
	}

	sess := s.newSession(id, rec.Data, rec.Timestamp)
	sess.persisted = from == LocationDurable

	if now-sess.timestamp > sess.expirationSeconds {
		s.observer.ObserveEvent(EventExpired)
		if err := s.Delete(ctx, sess); err != nil {
			return nil, err
		}
		return s.Create(ctx, nil)
	}

	sess.touch(now)
	restamped := sess.timestamp != rec.Timestamp
	if restamped || from == LocationDurable {
		s.setCached(ctx, sess)
	}
	if restamped && !sess.Empty() {
		s.scheduleUpsert(sess)
	}

	return sess, nil
}

// Peek returns the stored session under id without re-stamping, expiring, or creating
// anything. The boolean is false when neither tier holds id.
func (s *Store) Peek(ctx context.Context, id string) (*Session, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	rec, from, err := s.load(ctx, id)
	if err != nil || from == LocationAbsent {
		return nil, false, err
	}
	sess := s.newSession(id, rec.Data, rec.Timestamp)
	sess.persisted = from == LocationDurable
	return sess, true, nil
}

// Create mints a new session holding data. The cache entry is always written; the durable
// row is inserted synchronously only when data is non-empty, and failing to obtain its
// row id aborts the create.
func (s *Store) Create(ctx context.Context, data map[string]any) (*Session, error) {
	id, err := s.ids.Generate(ctx)
	if err != nil {
		return nil, err
	}

	sess := s.newSession(id, NormalizeMap(data), s.now().Unix())
	s.setCached(ctx, sess)

	if !sess.Empty() {
		row, err := s.row(sess)
		if err != nil {
			s.deleteCached(ctx, id)
			return nil, fmt.Errorf("%w: %v", ErrDurableCreate, err)
		}
		rowID, err := s.durable.Insert(ctx, s.table, row)
		if err == nil && rowID == "" {
			err = errors.New("no row id returned")
		}
		if err != nil {
			s.deleteCached(ctx, id)
			return nil, fmt.Errorf("%w: %v", ErrDurableCreate, err)
		}
		sess.persisted = true
	}

	s.observer.ObserveEvent(EventCreated)
	return sess, nil
}

// Save re-stamps sess, writes it to the cache, and schedules a durable upsert unless its
// data is empty. It does not wait for the durable write.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if !sess.Attached() {
		return ErrUnattached
	}

	sess.touch(s.now().Unix())
	s.setCached(ctx, sess)

	if sess.Empty() {
		return nil
	}
	s.scheduleUpsert(sess)
	return nil
}

// SetData replaces (merge=false) or deep-merges (merge=true) data into sess and persists
// the result like [Store.Save]. A result with no keys deletes the session instead.
func (s *Store) SetData(ctx context.Context, sess *Session, data map[string]any, merge bool) error {
	if !sess.Attached() {
		return ErrUnattached
	}

	incoming := NormalizeMap(data)
	if merge {
		sess.data = Merge(sess.data, incoming)
	} else {
		sess.data = incoming
	}
	sess.touch(s.now().Unix())

	if sess.Empty() {
		s.observer.ObserveEvent(EventEmptiedOnMutate)
		return s.Delete(ctx, sess)
	}
	return s.Save(ctx, sess)
}

// Set stores value under key, replacing any previous value, and persists sess.
func (s *Store) Set(ctx context.Context, sess *Session, key string, value any) error {
	if !sess.Attached() {
		return ErrUnattached
	}
	next := cloneMap(sess.data)
	next[key] = value
	return s.SetData(ctx, sess, next, false)
}

// Remove deletes key from sess and persists the result. Removing the last key deletes the
// session. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, sess *Session, key string) error {
	if !sess.Attached() {
		return ErrUnattached
	}
	if !sess.Has(key) {
		return nil
	}
	next := cloneMap(sess.data)
	delete(next, key)
	return s.SetData(ctx, sess, next, false)
}

// Delete removes sess from both tiers and detaches it. The durable row is removed
// synchronously, and write-backs for the id still queued at that point are skipped when
// they run, so a delete is never undone by an earlier save. When the store knew a row
// existed and none was removed, Delete returns [ErrInconsistentDelete] after clearing the
// cache entry.
func (s *Store) Delete(ctx context.Context, sess *Session) error {
	if !sess.Attached() {
		return ErrUnattached
	}

	id := sess.id
	w := s.writes.acquire(id)
	w.mu.Lock()
	affected, err := s.durable.Delete(ctx, s.table, Filter{ColumnID: id})
	if err == nil {
		w.deleted = true
	}
	w.mu.Unlock()
	s.writes.release(id, w)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	expected := sess.persisted

	s.deleteCached(ctx, id)
	sess.detach()
	s.observer.ObserveEvent(EventDeleted)

	if affected == 0 && expected {
		return fmt.Errorf("%w: %s", ErrInconsistentDelete, shortID(id))
	}
	return nil
}

// StorageLocation reports where id resides, checking the cache tier first.
func (s *Store) StorageLocation(ctx context.Context, id string) (Location, error) {
	if id == "" {
		return LocationAbsent, nil
	}

	ok, err := s.cache.Exists(ctx, id)
	if err != nil {
		return LocationAbsent, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if ok {
		return LocationCache, nil
	}

	rows, err := s.durable.Select(ctx, s.table, []string{ColumnID}, Filter{ColumnID: id})
	if err != nil {
		return LocationAbsent, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	if len(rows) > 0 {
		return LocationDurable, nil
	}
	return LocationAbsent, nil
}

// locateCandidate is the id generator's uniqueness check. The durable tier is
// authoritative, so its faults fail the check; a cache fault is recorded and the check
// falls through to the durable tier.
func (s *Store) locateCandidate(ctx context.Context, id string) (Location, error) {
	ok, err := s.cache.Exists(ctx, id)
	switch {
	case err != nil:
		s.cacheFault("exists", id, err)
	case ok:
		return LocationCache, nil
	}

	rows, err := s.durable.Select(ctx, s.table, []string{ColumnID}, Filter{ColumnID: id})
	if err != nil {
		return LocationAbsent, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	if len(rows) > 0 {
		return LocationDurable, nil
	}
	return LocationAbsent, nil
}

// PendingWrites reports how many session ids have durable write-backs in flight.
func (s *Store) PendingWrites() int {
	return s.writes.pending()
}

func (s *Store) newSession(id string, data map[string]any, ts int64) *Session {
	if data == nil {
		data = map[string]any{}
	}
	return &Session{
		id:                    id,
		data:                  data,
		timestamp:             ts,
		expirationSeconds:     s.expirationSeconds,
		csrfExpirationSeconds: s.csrfExpirationSeconds,
		cookie:                s.cookie,
	}
}

// load reads id from the cache, falling back to the durable tier. Cache faults are
// swallowed; durable faults are returned.
func (s *Store) load(ctx context.Context, id string) (Record, Location, error) {
	rec, ok, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.cacheFault("get", id, err)
	case ok:
		s.observer.ObserveEvent(EventResolvedFromCache)
		return rec, LocationCache, nil
	}

	rows, err := s.durable.Select(ctx, s.table, []string{ColumnData, ColumnTimestamp}, Filter{ColumnID: id})
	if err != nil {
		return Record{}, LocationAbsent, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	if len(rows) == 0 {
		return Record{}, LocationAbsent, nil
	}

	rec, err = recordFromRow(id, rows[0])
	if err != nil {
		return Record{}, LocationAbsent, err
	}
	s.observer.ObserveEvent(EventResolvedFromDurable)
	return rec, LocationDurable, nil
}

func (s *Store) setCached(ctx context.Context, sess *Session) {
	if err := s.cache.Set(ctx, sess.id, sess.record()); err != nil {
		s.cacheFault("set", sess.id, err)
	}
}

func (s *Store) deleteCached(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.cacheFault("delete", id, err)
	}
}

func (s *Store) cacheFault(op, id string, err error) {
	s.observer.ObserveEvent(EventCacheFault)
	s.logger.Debug("session cache fault", "op", op, "session", shortID(id), "err", err)
}

// scheduleUpsert hands a snapshot of sess to the executor. The snapshot is taken now, so
// later mutations of sess do not leak into this write.
func (s *Store) scheduleUpsert(sess *Session) {
	id := sess.id
	row, err := s.row(sess)
	if err != nil {
		s.observer.ObserveEvent(EventWriteBackFailed)
		s.logger.Warn("session write-back encode failed", "session", shortID(id), "err", err)
		return
	}

	w := s.writes.acquire(id)
	err = s.exec.Submit(func(ctx context.Context) {
		defer s.writes.release(id, w)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.deleted {
			s.logger.Debug("session write-back skipped after delete", "session", shortID(id))
			return
		}
		if err := s.durable.Upsert(ctx, s.table, row); err != nil {
			s.observer.ObserveEvent(EventWriteBackFailed)
			s.logger.Warn("session write-back failed", "session", shortID(id), "err", err)
		}
	})
	if err != nil {
		s.writes.release(id, w)
		s.observer.ObserveEvent(EventWriteBackDropped)
		s.logger.Warn("session write-back not scheduled", "session", shortID(id), "err", err)
		return
	}
	s.observer.ObserveEvent(EventWriteBackScheduled)
}

func (s *Store) row(sess *Session) (Row, error) {
	data, err := EncodeData(sess.data)
	if err != nil {
		return nil, err
	}
	return Row{
		ColumnID:        sess.id,
		ColumnData:      data,
		ColumnTimestamp: sess.timestamp,
	}, nil
}

func recordFromRow(id string, row Row) (Record, error) {
	raw, ok := row[ColumnData].([]byte)
	if !ok {
		if str, isStr := row[ColumnData].(string); isStr {
			raw = []byte(str)
		} else {
			return Record{}, fmt.Errorf("%w: data column is %T", ErrCorruptRecord, row[ColumnData])
		}
	}
	data, err := DecodeData(raw)
	if err != nil {
		return Record{}, err
	}
	ts, ok := asInt64(row[ColumnTimestamp])
	if !ok {
		return Record{}, fmt.Errorf("%w: timestamp column is %T", ErrCorruptRecord, row[ColumnTimestamp])
	}
	return Record{ID: id, Data: data, Timestamp: ts}, nil
}

func asInt64(v any) (int64, bool) {
	switch n := Normalize(v).(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// shortID keeps session ids out of logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}
