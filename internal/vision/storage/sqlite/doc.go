// Package sqlite persists tracking sessions to a SQLite database.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary. A Store implements pipeline.TrajectorySink, writing a session and
// its samples and loss events in one transaction.
package sqlite
