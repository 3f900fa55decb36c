package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/writeback"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tier/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *session.Store
	cache   *memory.Cache
	durable *memory.Durable
	clock   *fakeClock
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()

	h := &harness{
		cache:   memory.NewCache(0),
		durable: memory.NewDurable(),
		clock:   newFakeClock(),
	}
	base := []session.Option{
		session.WithExecutor(writeback.Inline{}),
		session.WithClock(h.clock.Now),
		session.WithIDConfig(session.IDConfig{CheckBackoff: time.Microsecond}),
	}
	store, err := session.NewStore(h.cache, h.durable, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	h.store = store
	return h
}

func (h *harness) location(t *testing.T, id string) session.Location {
	t.Helper()
	loc, err := h.store.StorageLocation(context.Background(), id)
	if err != nil {
		t.Fatalf("storage location: %v", err)
	}
	return loc
}

func TestNewStoreRequiresBothTiers(t *testing.T) {
	if _, err := session.NewStore(nil, memory.NewDurable()); err == nil {
		t.Fatal("expected error without cache tier")
	}
	if _, err := session.NewStore(memory.NewCache(1), nil); err == nil {
		t.Fatal("expected error without durable tier")
	}
}

func TestResolveEmptyIDCreatesCacheOnlySession(t *testing.T) {
	h := newHarness(t)

	sess, err := h.store.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !sess.Attached() || !sess.Empty() {
		t.Fatalf("expected attached empty session, got id=%q data=%v", sess.ID(), sess.Data())
	}
	if sess.Timestamp() != h.clock.Now().Unix() {
		t.Fatalf("expected timestamp %d, got %d", h.clock.Now().Unix(), sess.Timestamp())
	}
	if h.durable.Len(session.DefaultTable) != 0 {
		t.Fatal("empty session must not reach the durable tier")
	}
	if loc := h.location(t, sess.ID()); loc != session.LocationCache {
		t.Fatalf("expected cache location, got %v", loc)
	}
}

func TestResolveUnknownIDMintsNewID(t *testing.T) {
	h := newHarness(t)

	sess, err := h.store.Resolve(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess.ID() == "does-not-exist" {
		t.Fatal("unknown id must never be adopted")
	}
}

func TestCreateNonEmptyWritesDurableSynchronously(t *testing.T) {
	h := newHarness(t, session.WithExecutor(session.ExecutorFunc(func(session.Task) error {
		t.Fatal("create must not go through the executor")
		return nil
	})))

	sess, err := h.store.Create(context.Background(), map[string]any{"user": "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.durable.Len(session.DefaultTable) != 1 {
		t.Fatal("expected durable row after non-empty create")
	}

	h.cache.Evict(sess.ID())
	if loc := h.location(t, sess.ID()); loc != session.LocationDurable {
		t.Fatalf("expected durable location after eviction, got %v", loc)
	}
}

func TestReadYourWriteThroughEitherTier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := h.store.Set(ctx, sess, "n", 7); err != nil {
		t.Fatalf("set: %v", err)
	}

	again, err := h.store.Resolve(ctx, sess.ID())
	if err != nil {
		t.Fatalf("resolve from cache: %v", err)
	}
	if v, _ := again.Get("n"); v != int64(7) {
		t.Fatalf("expected normalized int64 7 from cache, got %#v", v)
	}

	h.cache.Purge()
	fromDurable, err := h.store.Resolve(ctx, sess.ID())
	if err != nil {
		t.Fatalf("resolve from durable: %v", err)
	}
	if fromDurable.ID() != sess.ID() {
		t.Fatal("expected the same id to resolve from the durable tier")
	}
	if v, _ := fromDurable.Get("n"); v != int64(7) {
		t.Fatalf("expected 7 from durable, got %#v", v)
	}
	if loc := h.location(t, sess.ID()); loc != session.LocationCache {
		t.Fatalf("expected durable hit to repopulate the cache, got %v", loc)
	}
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	h := newHarness(t, session.WithExpiration(60))
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldID := sess.ID()

	h.clock.Advance(60 * time.Second)
	live, err := h.store.Resolve(ctx, oldID)
	if err != nil {
		t.Fatalf("resolve at boundary: %v", err)
	}
	if live.ID() != oldID {
		t.Fatal("a session idle for exactly the expiration must still be live")
	}

	h.clock.Advance(61 * time.Second)
	fresh, err := h.store.Resolve(ctx, oldID)
	if err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if fresh.ID() == oldID {
		t.Fatal("expired session must be replaced with a new id")
	}
	if !fresh.Empty() {
		t.Fatalf("replacement must be empty, got %v", fresh.Data())
	}
	if loc := h.location(t, oldID); loc != session.LocationAbsent {
		t.Fatalf("expired id must be gone from both tiers, got %v", loc)
	}
}

func TestResolveRestampsAndWritesBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clock.Advance(30 * time.Second)

	resolved, err := h.store.Resolve(ctx, sess.ID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := h.clock.Now().Unix()
	if resolved.Timestamp() != want {
		t.Fatalf("expected restamp to %d, got %d", want, resolved.Timestamp())
	}

	rows, err := h.durable.Select(ctx, session.DefaultTable, nil, session.Filter{session.ColumnID: sess.ID()})
	if err != nil || len(rows) != 1 {
		t.Fatalf("select: rows=%v err=%v", rows, err)
	}
	if rows[0][session.ColumnTimestamp] != want {
		t.Fatalf("expected durable timestamp %d, got %#v", want, rows[0][session.ColumnTimestamp])
	}
}

func TestTimestampNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stamped := sess.Timestamp()

	h.clock.Advance(-time.Hour)
	if err := h.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sess.Timestamp() != stamped {
		t.Fatalf("timestamp moved backwards: %d -> %d", stamped, sess.Timestamp())
	}
}

func TestSetDataMergeIsDeep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{
		"profile": map[string]any{"name": "a", "langs": []any{"go"}},
		"keep":    true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = h.store.SetData(ctx, sess, map[string]any{
		"profile": map[string]any{"email": "a@example.com"},
	}, true)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	profile, _ := sess.Get("profile")
	p, ok := profile.(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", profile)
	}
	if p["name"] != "a" || p["email"] != "a@example.com" {
		t.Fatalf("expected nested keys merged, got %v", p)
	}
	if !sess.Has("keep") {
		t.Fatal("merge must keep untouched top-level keys")
	}

	if err := h.store.SetData(ctx, sess, map[string]any{"only": 1}, false); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if sess.Has("profile") || !sess.Has("only") {
		t.Fatalf("replace must drop previous keys, got %v", sess.Data())
	}
}

func TestEmptyingSessionDeletesIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"last": "key"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := sess.ID()

	if err := h.store.Remove(ctx, sess, "absent"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if !sess.Attached() {
		t.Fatal("removing an absent key must be a no-op")
	}

	if err := h.store.Remove(ctx, sess, "last"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if sess.Attached() {
		t.Fatal("emptied session must be detached")
	}
	if loc := h.location(t, id); loc != session.LocationAbsent {
		t.Fatalf("emptied session must be gone from both tiers, got %v", loc)
	}

	if err := h.store.Save(ctx, sess); !errors.Is(err, session.ErrUnattached) {
		t.Fatalf("save after delete: expected ErrUnattached, got %v", err)
	}
}

func TestMutationsRequireAttachedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var detached *session.Session
	checks := map[string]error{
		"save":    h.store.Save(ctx, detached),
		"setdata": h.store.SetData(ctx, detached, map[string]any{"a": 1}, true),
		"set":     h.store.Set(ctx, detached, "a", 1),
		"remove":  h.store.Remove(ctx, detached, "a"),
		"delete":  h.store.Delete(ctx, detached),
	}
	for name, err := range checks {
		if !errors.Is(err, session.ErrUnattached) {
			t.Fatalf("%s: expected ErrUnattached, got %v", name, err)
		}
	}
}

func TestDeleteIsIdempotentForCallers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Delete(ctx, sess); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := h.store.Delete(ctx, sess); !errors.Is(err, session.ErrUnattached) {
		t.Fatalf("second delete: expected ErrUnattached, got %v", err)
	}
}

func TestDeleteReportsMissingDurableRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := sess.ID()
	if _, err := h.durable.Delete(ctx, session.DefaultTable, session.Filter{session.ColumnID: id}); err != nil {
		t.Fatalf("remove row behind the store: %v", err)
	}

	err = h.store.Delete(ctx, sess)
	if !errors.Is(err, session.ErrInconsistentDelete) {
		t.Fatalf("expected ErrInconsistentDelete, got %v", err)
	}
	if sess.Attached() {
		t.Fatal("session must be detached even when the delete is inconsistent")
	}
	if loc := h.location(t, id); loc != session.LocationAbsent {
		t.Fatalf("cache entry must be cleared, got %v", loc)
	}
}

func TestDeleteOfCacheOnlySessionSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := h.store.Delete(ctx, sess); err != nil {
		t.Fatalf("delete of cache-only session: %v", err)
	}
}

func TestDurableCreateFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.durable.OmitRowIDs(true)

	_, err := h.store.Create(context.Background(), map[string]any{"k": "v"})
	if !errors.Is(err, session.ErrDurableCreate) {
		t.Fatalf("expected ErrDurableCreate, got %v", err)
	}
	if h.cache.Len() != 0 {
		t.Fatal("failed create must not leave a cache entry")
	}
}

func TestIDGenerationFailsClosedWhenDurableUnavailable(t *testing.T) {
	obs := &countingObserver{}
	h := newHarness(t, session.WithObserver(obs))
	h.durable.SetUnavailable(errors.New("db down"))

	_, err := h.store.Resolve(context.Background(), "")
	if !errors.Is(err, session.ErrIDGeneration) {
		t.Fatalf("expected ErrIDGeneration, got %v", err)
	}
	if retries := obs.count(session.EventIDCheckRetry); retries != session.DefaultCheckAttempts-1 {
		t.Fatalf("expected %d retries, got %d", session.DefaultCheckAttempts-1, retries)
	}
	if h.cache.Len() != 0 {
		t.Fatal("no session may be created without a uniqueness proof")
	}
}

func TestDurableReadFailureIsSurfaced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.cache.Purge()
	h.durable.SetUnavailable(errors.New("db down"))

	if _, err := h.store.Resolve(ctx, sess.ID()); !errors.Is(err, session.ErrDurableUnavailable) {
		t.Fatalf("expected ErrDurableUnavailable, got %v", err)
	}
}

func TestCacheFaultsAreSwallowed(t *testing.T) {
	obs := &countingObserver{}
	h := newHarness(t, session.WithObserver(obs))
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.cache.SetUnavailable(errors.New("cache down"))

	resolved, err := h.store.Resolve(ctx, sess.ID())
	if err != nil {
		t.Fatalf("resolve with cache down: %v", err)
	}
	if resolved.ID() != sess.ID() {
		t.Fatal("expected durable fallback to keep the id")
	}
	if err := h.store.Set(ctx, resolved, "k", "w"); err != nil {
		t.Fatalf("set with cache down: %v", err)
	}
	if obs.count(session.EventCacheFault) == 0 {
		t.Fatal("expected cache faults to be observed")
	}

	if _, err := h.store.StorageLocation(ctx, sess.ID()); !errors.Is(err, session.ErrCacheUnavailable) {
		t.Fatalf("storage location: expected ErrCacheUnavailable, got %v", err)
	}
}

func TestWriteBackSnapshotsAtScheduleTime(t *testing.T) {
	var tasks []session.Task
	h := newHarness(t, session.WithExecutor(session.ExecutorFunc(func(task session.Task) error {
		tasks = append(tasks, task)
		return nil
	})))
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Set(ctx, sess, "v", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := h.store.Set(ctx, sess, "v", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 scheduled write-backs, got %d", len(tasks))
	}

	tasks[0](ctx)
	h.cache.Purge()

	got, ok, err := h.store.Peek(ctx, sess.ID())
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if v, _ := got.Get("v"); v != int64(2) {
		t.Fatalf("expected first snapshot in durable, got %#v", v)
	}
}

func TestWriteBackRejectionDoesNotFailSave(t *testing.T) {
	obs := &countingObserver{}
	h := newHarness(t,
		session.WithObserver(obs),
		session.WithExecutor(session.ExecutorFunc(func(session.Task) error { return session.ErrQueueFull })),
	)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Set(ctx, sess, "k", "w"); err != nil {
		t.Fatalf("set must not report write-back failures: %v", err)
	}
	if obs.count(session.EventWriteBackDropped) != 1 {
		t.Fatalf("expected one dropped write-back, got %d", obs.count(session.EventWriteBackDropped))
	}
}

func TestPeekDoesNotRestamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created := sess.Timestamp()
	h.clock.Advance(time.Minute)

	peeked, ok, err := h.store.Peek(ctx, sess.ID())
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if peeked.Timestamp() != created {
		t.Fatalf("peek restamped: %d -> %d", created, peeked.Timestamp())
	}

	if _, ok, err := h.store.Peek(ctx, "missing"); ok || err != nil {
		t.Fatalf("peek of missing id: ok=%v err=%v", ok, err)
	}
}

func TestSessionsCarryConfiguredAttributes(t *testing.T) {
	cookie := session.CookieOptions{Name: "sid", HTTPOnly: true, Secure: true, Path: "/app"}
	h := newHarness(t,
		session.WithExpiration(120),
		session.WithCSRFExpiration(30),
		session.WithCookie(cookie),
		session.WithTable("web_sessions"),
	)

	sess, err := h.store.Create(context.Background(), map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ExpirationSeconds() != 120 || sess.CSRFExpirationSeconds() != 30 {
		t.Fatalf("unexpected lifetimes: %d %d", sess.ExpirationSeconds(), sess.CSRFExpirationSeconds())
	}
	if sess.Cookie() != cookie {
		t.Fatalf("unexpected cookie: %+v", sess.Cookie())
	}
	if h.durable.Len("web_sessions") != 1 {
		t.Fatal("expected row in configured table")
	}
}

// firstWriteCache checks, on the first cache write of each id, that neither tier held it.
type firstWriteCache struct {
	*memory.Cache
	durable *memory.Durable
	seen    map[string]struct{}
	t       *testing.T
}

func (c *firstWriteCache) Set(ctx context.Context, id string, rec session.Record) error {
	if _, ok := c.seen[id]; !ok {
		c.seen[id] = struct{}{}
		if ok, _ := c.Cache.Exists(ctx, id); ok {
			c.t.Fatalf("id %d was already cached when generated", len(c.seen))
		}
		rows, err := c.durable.Select(ctx, session.DefaultTable, nil, session.Filter{session.ColumnID: id})
		if err != nil || len(rows) > 0 {
			c.t.Fatalf("id %d already durable when generated: rows=%d err=%v", len(c.seen), len(rows), err)
		}
	}
	return c.Cache.Set(ctx, id, rec)
}

func TestGeneratedIDsAreAbsentFromBothTiers(t *testing.T) {
	durable := memory.NewDurable()
	cache := &firstWriteCache{
		Cache:   memory.NewCache(20000),
		durable: durable,
		seen:    make(map[string]struct{}, 10000),
		t:       t,
	}
	store, err := session.NewStore(cache, durable,
		session.WithExecutor(writeback.Inline{}),
		session.WithIDConfig(session.IDConfig{CheckBackoff: time.Microsecond}),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		var (
			sess *session.Session
			err  error
		)
		if i%2 == 0 {
			sess, err = store.Resolve(ctx, "")
		} else {
			sess, err = store.Create(ctx, map[string]any{"i": i})
		}
		if err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
		if loc, err := store.StorageLocation(ctx, sess.ID()); err != nil || loc != session.LocationCache {
			t.Fatalf("session %d: expected cached after create, got %s err=%v", i, loc, err)
		}
	}
	if len(cache.seen) != 10000 {
		t.Fatalf("expected 10000 distinct ids, got %d", len(cache.seen))
	}
}

func TestCreateSucceedsDuringCacheOutage(t *testing.T) {
	obs := &countingObserver{}
	h := newHarness(t, session.WithObserver(obs))
	ctx := context.Background()
	h.cache.SetUnavailable(errors.New("cache down"))

	sess, err := h.store.Create(ctx, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("create with cache down: %v", err)
	}
	if obs.count(session.EventIDCheckRetry) != 0 {
		t.Fatal("cache faults must not trigger uniqueness retries")
	}
	if h.durable.Len(session.DefaultTable) != 1 {
		t.Fatal("expected durable row")
	}

	h.cache.SetUnavailable(nil)
	if got := h.location(t, sess.ID()); got != session.LocationDurable {
		t.Fatalf("expected durable location, got %s", got)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	events map[session.Event]int
}

func (o *countingObserver) ObserveEvent(ev session.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = map[session.Event]int{}
	}
	o.events[ev]++
}

func (o *countingObserver) ObserveResolve(time.Duration) {}

func (o *countingObserver) count(ev session.Event) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[ev]
}
