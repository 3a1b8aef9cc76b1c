package domain

import (
	"slices"
	"time"
)

// Business represents a directory listing owned by a platform user
type Business struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	OwnerEmail string    `json:"owner_email"`
	Badges     []string  `json:"badges"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BadgeOwnerDeleted marks a listing whose owner account was deleted. The
// listing stays visible; OwnerEmail is kept so it can be reattached later.
const BadgeOwnerDeleted = "owner_deleted"

func (b Business) HasBadge(badge string) bool {
	return slices.Contains(b.Badges, badge)
}

// BadgesWith returns the badge list with badge appended, without duplicates.
func (b Business) BadgesWith(badge string) []string {
	if b.HasBadge(badge) {
		return b.Badges
	}
	return append(slices.Clone(b.Badges), badge)
}
