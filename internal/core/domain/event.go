package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Event represents a scheduled happening ingested from an external feed
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	Source           string    `json:"source"`
	StartsAt         time.Time `json:"starts_at"`
	ImageURL         string    `json:"image_url"`
	ImageKind        ImageKind `json:"image_kind"`
	ImageFingerprint string    `json:"image_fingerprint"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type ImageKind string

const (
	ImageKindPrimary   ImageKind = "primary"
	ImageKindGallery   ImageKind = "gallery"
	ImageKindThumbnail ImageKind = "thumbnail"
)

// HasImage reports whether an image has been assigned to the event.
func (e Event) HasImage() bool {
	return e.ImageURL != ""
}

// AssignImage sets the event image and recomputes its fingerprint. This is
// the only path that may change the fingerprint of an existing image.
func (e *Event) AssignImage(url string, kind ImageKind) {
	if kind == "" {
		kind = ImageKindPrimary
	}
	e.ImageURL = url
	e.ImageKind = kind
	e.ImageFingerprint = ImageFingerprint(url, kind)
}

// StartsOn returns the UTC calendar date of the event start, used as part of
// the natural key alongside the normalized title and source.
func (e Event) StartsOn() string {
	return e.StartsAt.UTC().Format("2006-01-02")
}

// ImageFingerprint derives a stable content fingerprint for an image
// assignment. Equal (url, kind) pairs always produce the same fingerprint.
func ImageFingerprint(url string, kind ImageKind) string {
	if url == "" {
		return ""
	}
	if kind == "" {
		kind = ImageKindPrimary
	}
	sum := sha256.Sum256([]byte(string(kind) + "\n" + url))
	return hex.EncodeToString(sum[:])[:32]
}
