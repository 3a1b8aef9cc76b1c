package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrUnfiltered is returned when an update or delete carries no filters.
	// Whole-table writes are never intended here.
	ErrUnfiltered = errors.New("refusing unfiltered write")
)

// Row is one record as the store sees it: column name to value.
type Row map[string]any

// String reads a column as a string, tolerating the value shapes the
// different backends produce.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Time reads a column as a time.Time. HTTP backends deliver RFC 3339
// strings, SQL backends deliver time.Time. Zero time when absent.
func (r Row) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	}
	return time.Time{}
}

// StringSlice reads a column as a string list, accepting native slices and
// JSON-encoded arrays (jsonb columns come back as bytes).
func (r Row) StringSlice(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return unmarshalStrings([]byte(v))
	case []byte:
		return unmarshalStrings(v)
	}
	return nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func unmarshalStrings(b []byte) []string {
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq     Op = "eq"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
)

// Filter constrains a query to rows where column <op> value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

func Lt(column string, value any) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Query selects rows of a table.
type Query struct {
	Columns []string // empty selects all
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

func ByID(id string) Query {
	return Query{Filters: []Filter{Eq("id", id)}}
}

// Store is the capability every remote-store backend implements. Backends do
// no retrying of their own; resilience is layered on by Resilient.
type Store interface {
	// Select retrieves rows matching the query
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// SelectOne retrieves exactly one row, domain.ErrNoRows when absent
	SelectOne(ctx context.Context, table string, q Query) (Row, error)

	// Insert adds rows
	Insert(ctx context.Context, table string, rows []Row) error

	// Upsert adds rows, updating existing ones that match the conflict columns
	Upsert(ctx context.Context, table string, conflictColumns []string, rows []Row) error

	// Update applies changes to matching rows and returns the affected count
	Update(ctx context.Context, table string, q Query, changes Row) (int64, error)

	// Delete removes matching rows and returns the affected count
	Delete(ctx context.Context, table string, q Query) (int64, error)

	// Ping verifies connectivity
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// IdentityStore manages auth identities, which live outside row storage.
type IdentityStore interface {
	// DeleteUser removes the auth identity of a user
	DeleteUser(ctx context.Context, userID string) error
}
