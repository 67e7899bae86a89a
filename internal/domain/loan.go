package domain

import (
	"context"
	"time"
)

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "ACTIVE"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
	LoanStatusReturned LoanStatus = "RETURNED"
)

// Loan records one member holding one copy of one book. BookID and UserID
// reference identities owned by the catalog and membership; the loan set
// itself is owned exclusively by the loan lifecycle service.
type Loan struct {
	ID         string // UUID
	BookID     string
	UserID     string
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate *time.Time // nil until returned, then fixed permanently
	Status     LoanStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusAt derives the loan status for reporting at instant now. A stored
// ACTIVE loan whose due date has passed reads as OVERDUE; RETURNED is
// terminal regardless of now. Pure function, never persisted here.
func (l *Loan) StatusAt(now time.Time) LoanStatus {
	if l.ReturnDate != nil || l.Status == LoanStatusReturned {
		return LoanStatusReturned
	}
	if now.After(l.DueDate) {
		return LoanStatusOverdue
	}
	return LoanStatusActive
}

// Returned reports whether the return transition already happened.
func (l *Loan) Returned() bool {
	return l.ReturnDate != nil
}

// LoanRepository defines data access for loans
type LoanRepository interface {
	Create(ctx context.Context, loan *Loan) error
	GetByID(ctx context.Context, id string) (*Loan, error)
	List(ctx context.Context) ([]*Loan, error)

	// ListByUser returns a member's loans ordered by loan date, most
	// recent first.
	ListByUser(ctx context.Context, userID string) ([]*Loan, error)

	// ListOverdue returns unreturned loans whose due date is before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*Loan, error)

	// MarkReturned applies the single ACTIVE/OVERDUE -> RETURNED
	// transition. It must be atomic per loan: when two returns race,
	// exactly one caller sees true.
	MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error)

	// MarkOverdue persists OVERDUE on an unreturned loan past its due
	// date. Used only by the optional sweep; queries never depend on it.
	MarkOverdue(ctx context.Context, id string) (bool, error)

	// Delete removes a loan record. Administrative, out-of-band; no
	// lifecycle invariants attach to it.
	Delete(ctx context.Context, id string) error
}
