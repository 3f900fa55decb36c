package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/MrEthical07/goSession/session"
	"github.com/google/uuid"
)

// ErrDuplicateKey is returned when inserting a row whose primary key already exists.
var ErrDuplicateKey = errors.New("duplicate primary key")

// ErrMissingKey is returned when a written row lacks a string primary key.
var ErrMissingKey = errors.New("row has no primary key")

// Durable is an in-memory durable tier.
type Durable struct {
	mu     sync.RWMutex
	tables map[string]map[string]session.Row
	fail   error
	noRow  bool
}

// NewDurable returns an empty durable tier.
func NewDurable() *Durable {
	return &Durable{tables: map[string]map[string]session.Row{}}
}

// SetUnavailable makes every operation fail with err until called again with nil.
func (d *Durable) SetUnavailable(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// OmitRowIDs makes Insert succeed without reporting a row id.
func (d *Durable) OmitRowIDs(omit bool) {
	d.mu.Lock()
	d.noRow = omit
	d.mu.Unlock()
}

// Select implements session.Durable.
func (d *Durable) Select(_ context.Context, table string, columns []string, filter session.Filter) ([]session.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fail != nil {
		return nil, d.fail
	}

	var out []session.Row
	for _, row := range d.match(table, filter) {
		out = append(out, project(row, columns))
	}
	return out, nil
}

// Insert implements session.Durable.
func (d *Durable) Insert(_ context.Context, table string, row session.Row) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return "", d.fail
	}

	id, ok := row[session.ColumnID].(string)
	if !ok || id == "" {
		return "", ErrMissingKey
	}
	rows := d.table(table)
	if _, exists := rows[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateKey, id)
	}

	stored := copyRow(row)
	rowID := uuid.NewString()
	stored[session.ColumnRowID] = rowID
	rows[id] = stored

	if d.noRow {
		return "", nil
	}
	return rowID, nil
}

// Update implements session.Durable.
func (d *Durable) Update(_ context.Context, table string, changes session.Row, filter session.Filter) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return 0, d.fail
	}

	matched := d.match(table, filter)
	for _, row := range matched {
		for col, v := range changes {
			if col == session.ColumnID || col == session.ColumnRowID {
				continue
			}
			row[col] = copyValue(v)
		}
	}
	return int64(len(matched)), nil
}

// Delete implements session.Durable.
func (d *Durable) Delete(_ context.Context, table string, filter session.Filter) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return 0, d.fail
	}

	rows := d.tables[table]
	matched := d.match(table, filter)
	for _, row := range matched {
		delete(rows, row[session.ColumnID].(string))
	}
	return int64(len(matched)), nil
}

// Upsert implements session.Durable.
func (d *Durable) Upsert(_ context.Context, table string, row session.Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}

	id, ok := row[session.ColumnID].(string)
	if !ok || id == "" {
		return ErrMissingKey
	}
	rows := d.table(table)
	existing, found := rows[id]
	if !found {
		stored := copyRow(row)
		stored[session.ColumnRowID] = uuid.NewString()
		rows[id] = stored
		return nil
	}
	for col, v := range row {
		if col == session.ColumnRowID {
			continue
		}
		existing[col] = copyValue(v)
	}
	return nil
}

// Len returns the number of rows in table.
func (d *Durable) Len(table string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tables[table])
}

func (d *Durable) table(name string) map[string]session.Row {
	rows, ok := d.tables[name]
	if !ok {
		rows = map[string]session.Row{}
		d.tables[name] = rows
	}
	return rows
}

// match returns the live rows of table satisfying filter. Callers hold d.mu.
func (d *Durable) match(table string, filter session.Filter) []session.Row {
	rows := d.tables[table]
	if id, ok := filter[session.ColumnID].(string); ok {
		row, found := rows[id]
		if !found || !Matches(row, filter) {
			return nil
		}
		return []session.Row{row}
	}

	var out []session.Row
	for _, row := range rows {
		if Matches(row, filter) {
			out = append(out, row)
		}
	}
	return out
}

// Matches reports whether row satisfies every predicate of filter.
func Matches(row session.Row, filter session.Filter) bool {
	for col, want := range filter {
		got, ok := row[col]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	ab, aIsBytes := a.([]byte)
	bb, bIsBytes := b.([]byte)
	if aIsBytes || bIsBytes {
		return aIsBytes && bIsBytes && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(session.Normalize(a), session.Normalize(b))
}

func project(row session.Row, columns []string) session.Row {
	if len(columns) == 0 {
		return copyRow(row)
	}
	out := make(session.Row, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = copyValue(v)
		}
	}
	return out
}

func copyRow(row session.Row) session.Row {
	out := make(session.Row, len(row))
	for k, v := range row {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return bytes.Clone(b)
	}
	return v
}
