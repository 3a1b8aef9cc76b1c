// Package deletion removes user accounts and everything they own, in a
// strict order that keeps the directory consistent whatever fails mid-run.
package deletion

// Table names touched by account deletion beyond the dependent list.
const (
	TableBusinesses = "businesses"
	TableProfiles   = "profiles"
)

// Dependent is one user-owned table cleared before the profile row.
type Dependent struct {
	Entity string // name used in counts, failures, and logs
	Table  string
	Column string // column holding the user id
}

// dependents lists user-owned records in deletion order. Rows referencing
// other user content come before the content they reference, so nothing
// dangles if a run is interrupted partway.
var dependents = []Dependent{
	{Entity: "event_attributions", Table: "event_attributions", Column: "user_id"},
	{Entity: "notifications", Table: "notifications", Column: "user_id"},
	{Entity: "saved_items", Table: "saved_items", Column: "user_id"},
	{Entity: "deal_redemptions", Table: "deal_redemptions", Column: "user_id"},
	{Entity: "created_events", Table: "events", Column: "created_by"},
	{Entity: "claim_requests", Table: "claim_requests", Column: "user_id"},
	{Entity: "content_flags", Table: "content_flags", Column: "user_id"},
	{Entity: "review_votes", Table: "review_votes", Column: "user_id"},
	{Entity: "reviews", Table: "reviews", Column: "user_id"},
	{Entity: "booking_requests", Table: "booking_requests", Column: "user_id"},
	{Entity: "inquiry_messages", Table: "inquiry_messages", Column: "sender_id"},
	{Entity: "user_preferences", Table: "user_preferences", Column: "user_id"},
}
