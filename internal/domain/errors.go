package domain

import "errors"

// Expected business outcomes. Handlers map these to client responses;
// they are never logged as faults.
var (
	ErrBookNotFound      = errors.New("book not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrAlreadyReturned   = errors.New("loan already returned")
	ErrMemberInactive    = errors.New("member is inactive")
)

// ErrLockTimeout means a book's serialization point could not be acquired
// within the bounded wait. Retryable by the caller.
var ErrLockTimeout = errors.New("timed out waiting for book lock")

// ErrLedgerInconsistency means the copy counters and the loan set
// disagree in a way the atomic-unit guarantee should have prevented.
// Escalated, never silently corrected.
var ErrLedgerInconsistency = errors.New("availability ledger inconsistency")
