package ingest

import (
	"testing"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
)

func TestBuildPlanFreshBatch(t *testing.T) {
	incoming := []domain.Event{
		{Title: "Jazz Night", Source: "cityfeed", StartsAt: matchBase, ImageURL: "https://img.localdeck.test/jazz.jpg"},
		{Title: "Book Club", Source: "cityfeed", StartsAt: matchBase.Add(3 * time.Hour)},
	}

	plan := BuildPlan(incoming, nil, DefaultMatchOptions)

	if len(plan.Inserts) != 2 || len(plan.Updates) != 0 || plan.SkippedDuplicates != 0 {
		t.Fatalf("expected 2 inserts, got %d inserts %d updates %d skipped",
			len(plan.Inserts), len(plan.Updates), plan.SkippedDuplicates)
	}
	if plan.Inserts[0].ImageFingerprint == "" {
		t.Error("insert with image should carry a fingerprint")
	}
	if plan.Inserts[0].ImageKind != domain.ImageKindPrimary {
		t.Errorf("expected kind %q, got %q", domain.ImageKindPrimary, plan.Inserts[0].ImageKind)
	}
	if plan.Inserts[1].ImageFingerprint != "" {
		t.Error("insert without image should not carry a fingerprint")
	}
}

func TestBuildPlanIntraBatchDuplicates(t *testing.T) {
	incoming := []domain.Event{
		{Title: "Farmers Market", Source: "cityfeed", StartsAt: matchBase},
		{Title: "farmers' market", Source: "cityfeed", StartsAt: matchBase.Add(10 * time.Minute)},
		{Title: "Farmers Market Downtown", Source: "cityfeed", StartsAt: matchBase.Add(20 * time.Minute)},
	}

	plan := BuildPlan(incoming, nil, DefaultMatchOptions)

	if len(plan.Inserts) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(plan.Inserts))
	}
	if plan.SkippedDuplicates != 2 {
		t.Errorf("expected 2 skipped, got %d", plan.SkippedDuplicates)
	}
	if plan.Inserts[0].Title != "Farmers Market" {
		t.Errorf("first occurrence should win, got %q", plan.Inserts[0].Title)
	}
}

func TestBuildPlanPreservesExistingImage(t *testing.T) {
	existing := []domain.Event{{
		ID:               "ev-1",
		Title:            "Jazz Night",
		Source:           "cityfeed",
		StartsAt:         matchBase,
		ImageURL:         "https://img.localdeck.test/original.jpg",
		ImageKind:        domain.ImageKindPrimary,
		ImageFingerprint: "abc123",
		CreatedAt:        matchBase.Add(-24 * time.Hour),
	}}
	incoming := []domain.Event{{
		Title:    "Jazz Night!",
		Source:   "cityfeed",
		StartsAt: matchBase.Add(15 * time.Minute),
		Venue:    "Blue Note",
		ImageURL: "https://img.localdeck.test/scraped.jpg",
	}}

	plan := BuildPlan(incoming, existing, DefaultMatchOptions)

	if len(plan.Updates) != 1 || len(plan.Inserts) != 0 {
		t.Fatalf("expected exactly 1 update, got %d updates %d inserts",
			len(plan.Updates), len(plan.Inserts))
	}
	u := plan.Updates[0]
	if u.AdoptImage {
		t.Error("record with an existing image must not adopt a new one")
	}
	if u.Event.ImageURL != "https://img.localdeck.test/original.jpg" {
		t.Errorf("existing image clobbered, got %q", u.Event.ImageURL)
	}
	if u.Event.ImageFingerprint != "abc123" {
		t.Errorf("existing fingerprint recomputed, got %q", u.Event.ImageFingerprint)
	}
	if u.Event.ID != "ev-1" {
		t.Errorf("update must target the existing row, got id %q", u.Event.ID)
	}
	if u.Event.Venue != "Blue Note" {
		t.Errorf("non-image content should update, got venue %q", u.Event.Venue)
	}
	if !u.Event.CreatedAt.Equal(existing[0].CreatedAt) {
		t.Error("created_at must carry over from the existing row")
	}
}

func TestBuildPlanAdoptsFirstImage(t *testing.T) {
	existing := []domain.Event{{
		ID:       "ev-2",
		Title:    "Book Club",
		Source:   "cityfeed",
		StartsAt: matchBase,
	}}
	incoming := []domain.Event{{
		Title:    "Book Club",
		Source:   "cityfeed",
		StartsAt: matchBase.Add(5 * time.Minute),
		ImageURL: "https://img.localdeck.test/cover.jpg",
	}}

	plan := BuildPlan(incoming, existing, DefaultMatchOptions)

	if len(plan.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(plan.Updates))
	}
	u := plan.Updates[0]
	if !u.AdoptImage {
		t.Fatal("first image should be adopted")
	}
	want := domain.ImageFingerprint("https://img.localdeck.test/cover.jpg", domain.ImageKindPrimary)
	if u.Event.ImageFingerprint != want {
		t.Errorf("expected fingerprint %q, got %q", want, u.Event.ImageFingerprint)
	}
}

func TestBuildPlanNoImageEitherSide(t *testing.T) {
	existing := []domain.Event{{
		ID:       "ev-3",
		Title:    "Open Mic",
		Source:   "cityfeed",
		StartsAt: matchBase,
	}}
	incoming := []domain.Event{{
		Title:       "Open Mic",
		Source:      "cityfeed",
		StartsAt:    matchBase,
		Description: "signup at 7",
	}}

	plan := BuildPlan(incoming, existing, DefaultMatchOptions)

	if len(plan.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(plan.Updates))
	}
	u := plan.Updates[0]
	if u.AdoptImage || u.Event.HasImage() {
		t.Errorf("no image expected on either side, got %q", u.Event.ImageURL)
	}
}

func TestBuildPlanKeepsExistingSource(t *testing.T) {
	existing := []domain.Event{{
		ID:       "ev-4",
		Title:    "Night Market",
		Source:   "cityfeed",
		StartsAt: matchBase,
	}}
	incoming := []domain.Event{{
		Title:    "Night Market Downtown",
		Source:   "eventhub",
		StartsAt: matchBase.Add(20 * time.Minute),
	}}

	plan := BuildPlan(incoming, existing, MatchOptions{TimeWindow: time.Hour, AllowCrossSource: true})

	if len(plan.Updates) != 1 {
		t.Fatalf("expected cross-source update, got %d updates %d inserts",
			len(plan.Updates), len(plan.Inserts))
	}
	if got := plan.Updates[0].Event.Source; got != "cityfeed" {
		t.Errorf("update must keep the existing row's source, got %q", got)
	}
}
