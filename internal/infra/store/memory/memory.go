// Package memory provides an in-memory store backend for tests and for
// running without external services.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
)

// Store implements store.Store with mutex-guarded maps.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
}

func New() *Store {
	return &Store{tables: make(map[string][]store.Row)}
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Row
	for _, row := range s.tables[table] {
		if matchAll(row, q.Filters) {
			out = append(out, maps.Clone(row))
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := compareKey(out[i][q.OrderBy]) < compareKey(out[j][q.OrderBy])
			if q.Desc {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) SelectOne(ctx context.Context, table string, q store.Query) (store.Row, error) {
	rows, err := s.Select(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", table, domain.ErrNoRows)
	}
	return rows[0], nil
}

func (s *Store) Insert(ctx context.Context, table string, rows []store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.tables[table] = append(s.tables[table], s.prepare(row))
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, conflictColumns []string, rows []store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		idx := s.findConflict(table, conflictColumns, row)
		if idx < 0 {
			s.tables[table] = append(s.tables[table], s.prepare(row))
			continue
		}
		// Merge semantics: supplied columns replace, others survive.
		existing := s.tables[table][idx]
		for col, v := range row {
			existing[col] = v
		}
		existing["updated_at"] = time.Now().UTC()
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, q store.Query, changes store.Row) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, store.ErrUnfiltered)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.tables[table] {
		if matchAll(row, q.Filters) {
			for col, v := range changes {
				row[col] = v
			}
			row["updated_at"] = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, q store.Query) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("delete %s: %w", table, store.ErrUnfiltered)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0]
	var n int64
	for _, row := range s.tables[table] {
		if matchAll(row, q.Filters) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

// Seed inserts rows directly, bypassing id generation when rows carry ids.
// Test helper.
func (s *Store) Seed(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.tables[table] = append(s.tables[table], s.prepare(row))
	}
}

// Count reports the number of rows in a table. Test helper.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *Store) prepare(row store.Row) store.Row {
	out := maps.Clone(row)
	if out.String("id") == "" {
		out["id"] = uuid.NewString()
	}
	now := time.Now().UTC()
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = now
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = now
	}
	return out
}

func (s *Store) findConflict(table string, conflictColumns []string, row store.Row) int {
	if len(conflictColumns) == 0 {
		return -1
	}
	for i, existing := range s.tables[table] {
		same := true
		for _, col := range conflictColumns {
			if compareKey(existing[col]) != compareKey(row[col]) {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}

func matchAll(row store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		if !match(row, f) {
			return false
		}
	}
	return true
}

func match(row store.Row, f store.Filter) bool {
	v := row[f.Column]
	switch f.Op {
	case store.OpIsNull:
		return v == nil
	case store.OpIn:
		values, _ := f.Value.([]string)
		key := compareKey(v)
		for _, candidate := range values {
			if key == candidate {
				return true
			}
		}
		return false
	case store.OpGte:
		return compareKey(v) >= compareKey(f.Value)
	case store.OpLt:
		return compareKey(v) < compareKey(f.Value)
	default:
		return compareKey(v) == compareKey(f.Value)
	}
}

// compareKey renders values into strings that order correctly for the types
// the backends exchange: timestamps as fixed-width RFC 3339 UTC, the rest via
// fmt.
func compareKey(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Identities is the in-memory identity backend.
type Identities struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewIdentities() *Identities {
	return &Identities{users: make(map[string]struct{})}
}

// Add registers an identity. Test helper.
func (s *Identities) Add(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// Has reports whether an identity exists. Test helper.
func (s *Identities) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok
}

// DeleteUser removes the identity; deleting an absent identity succeeds.
func (s *Identities) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}
