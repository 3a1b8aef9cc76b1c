package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
)

func TestUpsertMergesOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Upsert(ctx, "events", []string{"title_key", "starts_on", "source"}, []store.Row{{
		"title":     "Farmers Market",
		"title_key": "farmers market",
		"starts_on": "2026-03-14",
		"source":    "cityfeed",
		"venue":     "Main Square",
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	first, err := s.SelectOne(ctx, "events", store.Where(store.Eq("title_key", "farmers market")))
	if err != nil {
		t.Fatalf("SelectOne() error = %v", err)
	}
	id := first.String("id")
	if id == "" {
		t.Fatal("upsert did not assign an id")
	}

	err = s.Upsert(ctx, "events", []string{"title_key", "starts_on", "source"}, []store.Row{{
		"title":     "Farmers Market",
		"title_key": "farmers market",
		"starts_on": "2026-03-14",
		"source":    "cityfeed",
		"venue":     "Riverside Park",
	}})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	if got := s.Count("events"); got != 1 {
		t.Fatalf("events count = %d, want 1 (merged)", got)
	}
	merged, _ := s.SelectOne(ctx, "events", store.ByID(id))
	if merged.String("venue") != "Riverside Park" {
		t.Fatalf("venue = %q, want merged value", merged.String("venue"))
	}
}

func TestSelectWindowAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	s.Seed("events",
		store.Row{"title": "early", "starts_at": base.Add(-2 * time.Hour)},
		store.Row{"title": "b", "starts_at": base.Add(30 * time.Minute)},
		store.Row{"title": "a", "starts_at": base.Add(10 * time.Minute)},
		store.Row{"title": "late", "starts_at": base.Add(3 * time.Hour)},
	)

	rows, err := s.Select(ctx, "events", store.Query{
		Filters: []store.Filter{
			store.Gte("starts_at", base),
			store.Lt("starts_at", base.Add(time.Hour)),
		},
		OrderBy: "starts_at",
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 2 || rows[0].String("title") != "a" || rows[1].String("title") != "b" {
		t.Fatalf("windowed rows = %v", rows)
	}
}

func TestDeleteCountsAndIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Seed("reviews",
		store.Row{"user_id": "u1"},
		store.Row{"user_id": "u1"},
		store.Row{"user_id": "u2"},
	)

	n, err := s.Delete(ctx, "reviews", store.Where(store.Eq("user_id", "u1")))
	if err != nil || n != 2 {
		t.Fatalf("Delete() = (%d, %v), want (2, nil)", n, err)
	}

	n, err = s.Delete(ctx, "reviews", store.Where(store.Eq("user_id", "u1")))
	if err != nil || n != 0 {
		t.Fatalf("second Delete() = (%d, %v), want (0, nil)", n, err)
	}
	if got := s.Count("reviews"); got != 1 {
		t.Fatalf("remaining rows = %d, want 1", got)
	}
}

func TestSelectOneAbsent(t *testing.T) {
	s := New()

	_, err := s.SelectOne(context.Background(), "profiles", store.ByID("missing"))
	if !errors.Is(err, domain.ErrNoRows) {
		t.Fatalf("SelectOne() error = %v, want ErrNoRows", err)
	}
}

func TestUpdateAppliesChanges(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Seed("businesses", store.Row{"id": "b1", "owner_id": "u1", "badges": []string{"verified"}})

	n, err := s.Update(ctx, "businesses", store.ByID("b1"), store.Row{
		"owner_id": nil,
		"badges":   []string{"verified", domain.BadgeOwnerDeleted},
	})
	if err != nil || n != 1 {
		t.Fatalf("Update() = (%d, %v), want (1, nil)", n, err)
	}

	row, _ := s.SelectOne(ctx, "businesses", store.ByID("b1"))
	if row["owner_id"] != nil {
		t.Fatalf("owner_id = %v, want nil", row["owner_id"])
	}
	badges := row.StringSlice("badges")
	if len(badges) != 2 || badges[1] != domain.BadgeOwnerDeleted {
		t.Fatalf("badges = %v", badges)
	}
}

func TestUnfilteredWritesRefused(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Update(ctx, "events", store.Query{}, store.Row{"title": "x"}); !errors.Is(err, store.ErrUnfiltered) {
		t.Fatalf("Update() error = %v, want ErrUnfiltered", err)
	}
	if _, err := s.Delete(ctx, "events", store.Query{}); !errors.Is(err, store.ErrUnfiltered) {
		t.Fatalf("Delete() error = %v, want ErrUnfiltered", err)
	}
}
