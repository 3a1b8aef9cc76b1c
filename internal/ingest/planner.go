package ingest

import "github.com/localdeck/steward/internal/core/domain"

// Plan partitions an incoming batch into fresh inserts and updates of
// existing records. SkippedDuplicates counts records dropped inside the
// batch itself (first occurrence wins).
type Plan struct {
	Inserts           []domain.Event
	Updates           []Update
	SkippedDuplicates int
}

// Update pairs the merged record with whether it adopts its first image.
// Image columns are only written when AdoptImage is set, so an image already
// on the record is never even transmitted, let alone overwritten.
type Update struct {
	Event      domain.Event
	AdoptImage bool
}

// BuildPlan dedupes incoming against itself, then against existing records.
// Pure: persistence happens in the catalog.
func BuildPlan(incoming, existing []domain.Event, opts MatchOptions) Plan {
	var plan Plan

	unique := make([]domain.Event, 0, len(incoming))
	for _, candidate := range incoming {
		dup := false
		for _, kept := range unique {
			if IsDuplicate(candidate, kept, opts) {
				dup = true
				break
			}
		}
		if dup {
			plan.SkippedDuplicates++
			continue
		}
		unique = append(unique, candidate)
	}

	for _, candidate := range unique {
		matched := false
		for i := range existing {
			if IsDuplicate(candidate, existing[i], opts) {
				plan.Updates = append(plan.Updates, mergeForUpdate(existing[i], candidate))
				matched = true
				break
			}
		}
		if !matched {
			plan.Inserts = append(plan.Inserts, prepareInsert(candidate))
		}
	}
	return plan
}

// mergeForUpdate builds the update candidate: incoming content over the
// existing identity. An image already on the existing record is preserved
// verbatim, whatever the incoming record carries.
func mergeForUpdate(existing, incoming domain.Event) Update {
	out := incoming
	out.ID = existing.ID
	out.Source = existing.Source
	out.CreatedAt = existing.CreatedAt

	if existing.HasImage() {
		out.ImageURL = existing.ImageURL
		out.ImageKind = existing.ImageKind
		out.ImageFingerprint = existing.ImageFingerprint
		return Update{Event: out}
	}
	if incoming.HasImage() {
		out.AssignImage(incoming.ImageURL, incoming.ImageKind)
		return Update{Event: out, AdoptImage: true}
	}
	return Update{Event: out}
}

func prepareInsert(e domain.Event) domain.Event {
	if e.HasImage() {
		e.AssignImage(e.ImageURL, e.ImageKind)
	}
	return e
}
