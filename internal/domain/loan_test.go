package domain

import (
	"testing"
	"time"
)

func TestStatusAt(t *testing.T) {
	day0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := day0.Add(14 * 24 * time.Hour)
	loan := &Loan{LoanDate: day0, DueDate: due, Status: LoanStatusActive}

	if got := loan.StatusAt(day0); got != LoanStatusActive {
		t.Fatalf("expected ACTIVE at loan date, got %s", got)
	}
	if got := loan.StatusAt(due); got != LoanStatusActive {
		t.Fatalf("expected ACTIVE at due instant, got %s", got)
	}
	if got := loan.StatusAt(due.Add(time.Nanosecond)); got != LoanStatusOverdue {
		t.Fatalf("expected OVERDUE past due, got %s", got)
	}

	returnedAt := due.Add(5 * 24 * time.Hour)
	loan.ReturnDate = &returnedAt
	if got := loan.StatusAt(returnedAt.Add(365 * 24 * time.Hour)); got != LoanStatusReturned {
		t.Fatalf("expected RETURNED to be terminal, got %s", got)
	}
	if !loan.Returned() {
		t.Fatal("expected Returned true after return date set")
	}
}

func TestStatusAtRespectsPersistedOverdue(t *testing.T) {
	day0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	loan := &Loan{LoanDate: day0, DueDate: day0.Add(24 * time.Hour), Status: LoanStatusOverdue}

	// A swept loan still derives from the dates, not the stored value
	if got := loan.StatusAt(day0.Add(48 * time.Hour)); got != LoanStatusOverdue {
		t.Fatalf("expected OVERDUE, got %s", got)
	}
}
