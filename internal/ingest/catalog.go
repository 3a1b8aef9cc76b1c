package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
)

// Table names in the directory schema.
const (
	TableEvents     = "events"
	TableImportRuns = "import_runs"
)

// eventConflictColumns is the natural key of the events table.
var eventConflictColumns = []string{"title_key", "starts_on", "source"}

// Catalog is the typed event repository over the generic store.
type Catalog struct {
	store store.Store
}

func NewCatalog(s store.Store) *Catalog {
	return &Catalog{store: s}
}

// ListWindow returns events starting within [from, to), ordered by start.
func (c *Catalog) ListWindow(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	rows, err := c.store.Select(ctx, TableEvents, store.Query{
		Filters: []store.Filter{
			store.Gte("starts_at", from.UTC()),
			store.Lt("starts_at", to.UTC()),
		},
		OrderBy: "starts_at",
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

// GetByID retrieves one event, nil when absent.
func (c *Catalog) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	row, err := c.store.SelectOne(ctx, TableEvents, store.ByID(id))
	if errors.Is(err, domain.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	e := eventFromRow(row)
	return &e, nil
}

// InsertBatch persists fresh records through the natural-key upsert, so a
// concurrent importer landing the same happening merges instead of forking
// a second row.
func (c *Catalog) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]store.Row, len(events))
	for i, e := range events {
		rows[i] = insertRow(e)
	}
	if err := c.store.Upsert(ctx, TableEvents, eventConflictColumns, rows); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

// ApplyUpdate writes an update candidate to its existing row, keyed by id so
// a shifted natural key can never fork a second row. Image columns are only
// included when the update adopts a first image. A vanished row is not an
// error: the next pass re-inserts the record.
func (c *Catalog) ApplyUpdate(ctx context.Context, u Update) error {
	e := u.Event
	changes := store.Row{
		"title":       e.Title,
		"title_key":   NormalizeTitle(e.Title),
		"description": e.Description,
		"venue":       e.Venue,
		"starts_at":   e.StartsAt.UTC(),
		"starts_on":   e.StartsOn(),
		"updated_at":  time.Now().UTC(),
	}
	if u.AdoptImage {
		changes["image_url"] = e.ImageURL
		changes["image_kind"] = string(e.ImageKind)
		changes["image_fingerprint"] = e.ImageFingerprint
	}

	if _, err := c.store.Update(ctx, TableEvents, store.ByID(e.ID), changes); err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	return nil
}

// AssignImage is the intentional image-set operation, the only path that
// recomputes the fingerprint of an existing image.
func (c *Catalog) AssignImage(ctx context.Context, eventID, url string, kind domain.ImageKind) error {
	var e domain.Event
	e.AssignImage(url, kind)

	n, err := c.store.Update(ctx, TableEvents, store.ByID(eventID), store.Row{
		"image_url":         e.ImageURL,
		"image_kind":        string(e.ImageKind),
		"image_fingerprint": e.ImageFingerprint,
		"updated_at":        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("assign image: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("assign image %s: %w", eventID, domain.ErrNoRows)
	}
	return nil
}

// RecordRun persists an import audit row. Keyed by run id so a retried
// write cannot duplicate the row.
func (c *Catalog) RecordRun(ctx context.Context, run domain.ImportRun) error {
	err := c.store.Upsert(ctx, TableImportRuns, []string{"id"}, []store.Row{{
		"id":          run.ID,
		"source":      run.Source,
		"status":      string(run.Status),
		"fetched":     run.Fetched,
		"inserted":    run.Inserted,
		"updated":     run.Updated,
		"skipped":     run.Skipped,
		"replayed":    run.Replayed,
		"failed":      run.Failed,
		"error_msg":   run.Error,
		"started_at":  run.StartedAt.UTC(),
		"finished_at": run.FinishedAt.UTC(),
	}})
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// LatestRuns lists recent import runs, newest first.
func (c *Catalog) LatestRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	rows, err := c.store.Select(ctx, TableImportRuns, store.Query{
		OrderBy: "started_at",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}

	runs := make([]domain.ImportRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, runFromRow(row))
	}
	return runs, nil
}

func insertRow(e domain.Event) store.Row {
	row := store.Row{
		"title":       e.Title,
		"title_key":   NormalizeTitle(e.Title),
		"description": e.Description,
		"venue":       e.Venue,
		"source":      e.Source,
		"starts_at":   e.StartsAt.UTC(),
		"starts_on":   e.StartsOn(),
	}
	if e.ID != "" {
		row["id"] = e.ID
	}
	if e.HasImage() {
		row["image_url"] = e.ImageURL
		row["image_kind"] = string(e.ImageKind)
		row["image_fingerprint"] = e.ImageFingerprint
	}
	return row
}

func eventFromRow(row store.Row) domain.Event {
	return domain.Event{
		ID:               row.String("id"),
		Title:            row.String("title"),
		Description:      row.String("description"),
		Venue:            row.String("venue"),
		Source:           row.String("source"),
		StartsAt:         row.Time("starts_at"),
		ImageURL:         row.String("image_url"),
		ImageKind:        domain.ImageKind(row.String("image_kind")),
		ImageFingerprint: row.String("image_fingerprint"),
		CreatedAt:        row.Time("created_at"),
		UpdatedAt:        row.Time("updated_at"),
	}
}

func runFromRow(row store.Row) domain.ImportRun {
	return domain.ImportRun{
		ID:         row.String("id"),
		Source:     row.String("source"),
		Status:     domain.ImportRunStatus(row.String("status")),
		Fetched:    rowInt(row, "fetched"),
		Inserted:   rowInt(row, "inserted"),
		Updated:    rowInt(row, "updated"),
		Skipped:    rowInt(row, "skipped"),
		Replayed:   rowInt(row, "replayed"),
		Failed:     rowInt(row, "failed"),
		Error:      row.String("error_msg"),
		StartedAt:  row.Time("started_at"),
		FinishedAt: row.Time("finished_at"),
	}
}

// rowInt tolerates the numeric shapes the backends produce: int64 from SQL,
// float64 from JSON, int from the memory store.
func rowInt(row store.Row, key string) int {
	switch v := row[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
