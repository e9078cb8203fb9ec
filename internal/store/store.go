// Package store is the data-access layer for the switchboard schema. It
// contains no allocation business logic; the reallocation engine decides,
// the store transitions. All allocation status writes happen here, inside
// transactions that re-check current status in the UPDATE predicate so a
// stale snapshot can never double-release or double-promote.
package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a query matches no rows.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a status transition loses a compare-and-set:
// the row was no longer in the expected status when the write committed.
var ErrConflict = errors.New("allocation state changed")

// Store provides access to input sources, game schedules, allocations and
// the reallocation history log.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
