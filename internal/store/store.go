// Package store persists deployment records, threat events, and incidents.
// Engines consume narrow slices of the Postgres implementation through
// their own interfaces; the in-memory implementation mirrors it for tests
// and local development.
package store

import "errors"

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("record not found")
