// Package postgres implements the store capability directly against
// PostgreSQL through pgx's database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx via database/sql
	"github.com/jmoiron/sqlx"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Store implements store.Store over a shared connection pool.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

func New(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log.With("component", "postgres")}, nil
}

// DB exposes the underlying connection for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	query, args := buildSelect(table, q)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, store.Row(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) SelectOne(ctx context.Context, table string, q store.Query) (store.Row, error) {
	q.Limit = 1
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
	if len(rows) == 0 {
		return nil
	}
	query, args := buildInsert(table, rows, nil)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, conflictColumns []string, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildInsert(table, rows, conflictColumns)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, q store.Query, changes store.Row) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, store.ErrUnfiltered)
	}

	cols := rowColumns(changes)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(q.Filters))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, normalizeArg(changes[col]))
	}
	where, whereArgs := buildWhere(q.Filters, len(cols)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, q store.Query) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("delete %s: %w", table, store.ErrUnfiltered)
	}

	where, args := buildWhere(q.Filters, 1)
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func buildSelect(table string, q store.Query) (string, []any) {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, table)

	where, args := buildWhere(q.Filters, 1)
	sb.WriteString(where)

	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args
}

func buildWhere(filters []store.Filter, start int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	conds := make([]string, 0, len(filters))
	var args []any
	n := start

	for _, f := range filters {
		switch f.Op {
		case store.OpIsNull:
			conds = append(conds, f.Column+" IS NULL")
		case store.OpIn:
			values, _ := f.Value.([]string)
			if len(values) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = fmt.Sprintf("$%d", n)
				args = append(args, v)
				n++
			}
			conds = append(conds, f.Column+" IN ("+strings.Join(placeholders, ", ")+")")
		case store.OpGte:
			conds = append(conds, fmt.Sprintf("%s >= $%d", f.Column, n))
			args = append(args, normalizeArg(f.Value))
			n++
		case store.OpLt:
			conds = append(conds, fmt.Sprintf("%s < $%d", f.Column, n))
			args = append(args, normalizeArg(f.Value))
			n++
		default:
			conds = append(conds, fmt.Sprintf("%s = $%d", f.Column, n))
			args = append(args, normalizeArg(f.Value))
			n++
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildInsert renders a multi-row insert, optionally with an ON CONFLICT
// merge over conflictColumns. All rows must carry the first row's columns.
func buildInsert(table string, rows []store.Row, conflictColumns []string) (string, []any) {
	cols := rowColumns(rows[0])

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*len(cols))
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		placeholders := make([]string, len(cols))
		for j, col := range cols {
			placeholders[j] = fmt.Sprintf("$%d", n)
			args = append(args, normalizeArg(row[col]))
			n++
		}
		sb.WriteString("(" + strings.Join(placeholders, ", ") + ")")
	}

	if len(conflictColumns) > 0 {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO ", strings.Join(conflictColumns, ", "))
		sets := make([]string, 0, len(cols))
		for _, col := range cols {
			if !contains(conflictColumns, col) {
				sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		}
		if len(sets) == 0 {
			sb.WriteString("NOTHING")
		} else {
			sb.WriteString("UPDATE SET " + strings.Join(sets, ", "))
		}
	}
	return sb.String(), args
}

func rowColumns(row store.Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// normalizeArg converts slice and map values to JSON text so they can bind
// to jsonb columns through database/sql.
func normalizeArg(v any) any {
	switch v.(type) {
	case []string, []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
