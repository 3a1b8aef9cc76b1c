package domain

import "errors"

// ErrNoRows is returned by store backends when a single-row lookup matches
// nothing. Callers treat it as absence, not failure.
var ErrNoRows = errors.New("no rows found")
