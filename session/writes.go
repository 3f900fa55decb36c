package session

import "sync"

// idWrites serializes durable writes for one id. While any write-back for the id is
// pending, a successful delete leaves deleted set so those write-backs are skipped.
type idWrites struct {
	mu      sync.Mutex
	refs    int
	deleted bool
}

// writeTracker holds an idWrites entry for every id with a pending write-back or an
// in-progress delete. Entries are dropped when their last reference is released.
type writeTracker struct {
	mu  sync.Mutex
	ids map[string]*idWrites
}

func newWriteTracker() *writeTracker {
	return &writeTracker{ids: make(map[string]*idWrites)}
}

func (t *writeTracker) acquire(id string) *idWrites {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.ids[id]
	if !ok {
		w = &idWrites{}
		t.ids[id] = w
	}
	w.refs++
	return w
}

func (t *writeTracker) release(id string, w *idWrites) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w.refs--
	if w.refs <= 0 && t.ids[id] == w {
		delete(t.ids, id)
	}
}

// pending reports how many ids have write-backs or deletes in flight.
func (t *writeTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
