package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrDuplicateKey is returned when inserting a row whose primary key already exists.
	ErrDuplicateKey = errors.New("duplicate primary key")
	// ErrMissingKey is returned when a written row lacks a string primary key.
	ErrMissingKey = errors.New("row has no primary key")
)

const maxConflictRetries = 3

// Config configures the Badger tier.
type Config struct {
	// Dir is the database directory. Empty opens an in-memory database.
	Dir string `koanf:"dir"`
	// SyncWrites fsyncs every commit.
	SyncWrites bool `koanf:"sync_writes"`
	// GCInterval runs value log GC periodically when positive.
	GCInterval time.Duration `koanf:"gc_interval"`
	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64 `koanf:"gc_threshold"`
}

// Store is a durable tier backed by Badger.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens the database described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && cfg.Dir != "" {
		go s.gcLoop()
	} else {
		close(s.doneCh)
	}
	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when a concurrent commit conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func rowKey(table, id string) []byte {
	return []byte(table + "/" + id)
}

func tablePrefix(table string) []byte {
	return []byte(table + "/")
}

// Select implements session.Durable.
func (s *Store) Select(_ context.Context, table string, columns []string, filter session.Filter) ([]session.Row, error) {
	var out []session.Row
	err := s.db.View(func(txn *badger.Txn) error {
		return s.each(txn, table, filter, func(_ []byte, row session.Row) error {
			out = append(out, project(row, columns))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Insert implements session.Durable.
func (s *Store) Insert(_ context.Context, table string, row session.Row) (string, error) {
	id, ok := row[session.ColumnID].(string)
	if !ok || id == "" {
		return "", ErrMissingKey
	}

	rowID := uuid.NewString()
	err := s.update(func(txn *badger.Txn) error {
		key := rowKey(table, id)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		stored := copyRow(row)
		stored[session.ColumnRowID] = rowID
		return putRow(txn, key, stored)
	})
	if err != nil {
		return "", err
	}
	return rowID, nil
}

// Update implements session.Durable.
func (s *Store) Update(_ context.Context, table string, changes session.Row, filter session.Filter) (int64, error) {
	var n int64
	err := s.update(func(txn *badger.Txn) error {
		type pending struct {
			key []byte
			row session.Row
		}
		var matched []pending
		err := s.each(txn, table, filter, func(key []byte, row session.Row) error {
			matched = append(matched, pending{key: key, row: row})
			return nil
		})
		if err != nil {
			return err
		}

		for _, m := range matched {
			for col, v := range changes {
				if col == session.ColumnID || col == session.ColumnRowID {
					continue
				}
				m.row[col] = v
			}
			if err := putRow(txn, m.key, m.row); err != nil {
				return err
			}
		}
		n = int64(len(matched))
		return nil
	})
	return n, err
}

// Delete implements session.Durable.
func (s *Store) Delete(_ context.Context, table string, filter session.Filter) (int64, error) {
	var n int64
	err := s.update(func(txn *badger.Txn) error {
		var keys [][]byte
		err := s.each(txn, table, filter, func(key []byte, _ session.Row) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		n = int64(len(keys))
		return nil
	})
	return n, err
}

// Upsert implements session.Durable.
func (s *Store) Upsert(_ context.Context, table string, row session.Row) error {
	id, ok := row[session.ColumnID].(string)
	if !ok || id == "" {
		return ErrMissingKey
	}

	return s.update(func(txn *badger.Txn) error {
		key := rowKey(table, id)
		existing, err := getRow(txn, key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			existing = session.Row{session.ColumnRowID: uuid.NewString()}
		case err != nil:
			return err
		}

		for col, v := range row {
			if col == session.ColumnRowID {
				continue
			}
			existing[col] = v
		}
		return putRow(txn, key, existing)
	})
}

// each calls fn for every row of table matching filter. A primary key predicate is served
// by a point read; anything else scans the table.
func (s *Store) each(txn *badger.Txn, table string, filter session.Filter, fn func(key []byte, row session.Row) error) error {
	if id, ok := filter[session.ColumnID].(string); ok {
		key := rowKey(table, id)
		row, err := getRow(txn, key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !matches(row, filter) {
			return nil
		}
		return fn(key, row)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = tablePrefix(table)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		row, err := decodeRow(raw)
		if err != nil {
			return err
		}
		if !matches(row, filter) {
			continue
		}
		if err := fn(item.KeyCopy(nil), row); err != nil {
			return err
		}
	}
	return nil
}

func getRow(txn *badger.Txn, key []byte) (session.Row, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeRow(raw)
}

func putRow(txn *badger.Txn, key []byte, row session.Row) error {
	raw, err := msgpack.Marshal(map[string]any(row))
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	return txn.Set(key, raw)
}

func decodeRow(raw []byte) (session.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCorruptRecord, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return session.Row(m), nil
}

func matches(row session.Row, filter session.Filter) bool {
	for col, want := range filter {
		got, ok := row[col]
		if !ok {
			return false
		}
		gb, gotBytes := got.([]byte)
		wb, wantBytes := want.([]byte)
		if gotBytes || wantBytes {
			if !gotBytes || !wantBytes || !bytes.Equal(gb, wb) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(session.Normalize(got), session.Normalize(want)) {
			return false
		}
	}
	return true
}

func project(row session.Row, columns []string) session.Row {
	if len(columns) == 0 {
		return row
	}
	out := make(session.Row, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

func copyRow(row session.Row) session.Row {
	out := make(session.Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runGC()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) runGC() {
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Warn("badger value log gc failed", "err", err)
		}
		return
	}
}

// badgerLogger routes Badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
