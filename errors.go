package ddbtest

import "errors"

var (
	// ErrPaginationBroken signals a server-side pagination protocol violation
	// detected by ListAllTables: a page carrying a continuation marker with
	// zero names, or a marker that does not advance between pages.
	ErrPaginationBroken = errors.New("pagination protocol violation")

	// ErrWaitTimeout is returned when a created table does not become ACTIVE
	// within the wait budget of CreateTestTable.
	ErrWaitTimeout = errors.New("table did not become active")
)
