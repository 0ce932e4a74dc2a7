package memory

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrScopeViolation reports an operation that touched a record
	// belonging to a different owner. Never recovered locally; always
	// propagates to the caller as a hard failure.
	ErrScopeViolation = goerr.New("record belongs to a different owner")

	// ErrNotFound reports a record ID that does not exist in the owner's
	// partition.
	ErrNotFound = goerr.New("memory record not found")
)
