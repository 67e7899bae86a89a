package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/events"
	"github.com/yourorg/biblioteca/internal/featureflags"
	"github.com/yourorg/biblioteca/internal/ledger"
	"github.com/yourorg/biblioteca/internal/observability/metrics"
	"github.com/yourorg/biblioteca/internal/observability/tracing"
	"github.com/yourorg/biblioteca/pkg/config"
)

// LoanService drives the loan state machine and keeps it consistent with
// the availability ledger. A checkout is one atomic unit: the copy
// decrement and the loan record either both happen or neither does.
type LoanService struct {
	ledger      *ledger.Ledger
	loans       domain.LoanRepository
	books       domain.BookRepository
	users       domain.UserRepository
	broadcaster *events.Broadcaster
	logger      *slog.Logger
	config      *config.Config
}

// NewLoanService creates a new loan service
func NewLoanService(
	lg *ledger.Ledger,
	loans domain.LoanRepository,
	books domain.BookRepository,
	users domain.UserRepository,
	broadcaster *events.Broadcaster,
	logger *slog.Logger,
	cfg *config.Config,
) *LoanService {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoanService{
		ledger:      lg,
		loans:       loans,
		books:       books,
		users:       users,
		broadcaster: broadcaster,
		logger:      logger,
		config:      cfg,
	}
}

// Checkout lends one copy of a book to a member. On success the loan is
// ACTIVE, due in LoanPeriodDays, and the book's available count is one
// lower. Expected failures: ErrBookNotFound, ErrUserNotFound,
// ErrMemberInactive, ErrNoCopiesAvailable, ErrLockTimeout.
func (s *LoanService) Checkout(ctx context.Context, bookID, userID string, now time.Time) (*domain.Loan, error) {
	ctx, span := tracing.Start(ctx, "loan.checkout",
		attribute.String("book.id", bookID),
		attribute.String("member.id", userID),
	)
	defer span.End()

	start := time.Now()

	// 1. Resolve the book and the member before touching any counter.
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		metrics.ObserveCheckout("not_found", time.Since(start))
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		metrics.ObserveCheckout("not_found", time.Since(start))
		return nil, err
	}
	if !user.IsActive && !featureflags.Enabled("inactive_borrowers") {
		metrics.ObserveCheckout("inactive_member", time.Since(start))
		return nil, domain.ErrMemberInactive
	}

	// 2. Take a copy off the shelf. The ledger linearizes this per book.
	reservation, err := s.ledger.Reserve(ctx, bookID)
	if err != nil {
		if errors.Is(err, domain.ErrNoCopiesAvailable) {
			metrics.ObserveCheckout("no_copies", time.Since(start))
		} else {
			metrics.ObserveCheckout("error", time.Since(start))
		}
		return nil, err
	}

	// 3. Record the loan the reservation is for.
	loan := &domain.Loan{
		ID:       uuid.NewString(),
		BookID:   bookID,
		UserID:   userID,
		LoanDate: now,
		DueDate:  now.Add(s.config.LoanPeriod()),
		Status:   domain.LoanStatusActive,
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		// 4. The reservation must not survive a failed loan write. If
		// the rollback itself fails, the counters and the loan set now
		// disagree; escalate instead of masking it.
		if relErr := s.ledger.Release(ctx, bookID); relErr != nil {
			metrics.ObserveLedgerInconsistency("checkout_rollback_failed")
			s.logger.Error("reservation rollback failed, ledger inconsistent",
				slog.String("book_id", bookID),
				slog.String("reservation", reservation.Token),
				slog.String("create_error", err.Error()),
				slog.String("release_error", relErr.Error()),
			)
			return nil, fmt.Errorf("loan create failed and rollback failed: %w", domain.ErrLedgerInconsistency)
		}
		metrics.ObserveCheckout("error", time.Since(start))
		return nil, fmt.Errorf("failed to persist loan: %w", err)
	}

	metrics.ObserveCheckout("success", time.Since(start))
	metrics.IncrementActiveLoans()
	s.logger.Info("book checked out",
		slog.String("loan_id", loan.ID),
		slog.String("book_id", bookID),
		slog.String("user_id", userID),
		slog.String("reservation", reservation.Token),
		slog.Time("due_date", loan.DueDate),
	)

	if s.broadcaster != nil {
		s.broadcaster.Publish(events.NewLoanEvent(events.EventCheckout, loan, now))
	}
	return loan, nil
}

// Return records a loan's return and puts the copy back on the shelf.
// Returning is deliberately not idempotent: a second return for the same
// loan gets ErrAlreadyReturned so double-return bugs in callers surface.
func (s *LoanService) Return(ctx context.Context, loanID string, now time.Time) (*domain.Loan, error) {
	ctx, span := tracing.Start(ctx, "loan.return", attribute.String("loan.id", loanID))
	defer span.End()

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		metrics.ObserveReturn("not_found")
		return nil, err
	}

	// The guarded update is the serialization point per loan: of two
	// racing returns exactly one flips the row.
	ok, err := s.loans.MarkReturned(ctx, loanID, now)
	if err != nil {
		metrics.ObserveReturn("error")
		return nil, fmt.Errorf("failed to mark loan returned: %w", err)
	}
	if !ok {
		metrics.ObserveReturn("already_returned")
		return nil, domain.ErrAlreadyReturned
	}

	loan.ReturnDate = &now
	loan.Status = domain.LoanStatusReturned

	// The loan row already says RETURNED; a failed release here leaves
	// the counters one short. That breaks the atomic-unit guarantee and
	// must be reported, not absorbed.
	if err := s.ledger.Release(ctx, loan.BookID); err != nil {
		metrics.ObserveLedgerInconsistency("return_release_failed")
		s.logger.Error("copy release failed after return, ledger inconsistent",
			slog.String("loan_id", loanID),
			slog.String("book_id", loan.BookID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loan returned but copy release failed: %w", domain.ErrLedgerInconsistency)
	}

	metrics.ObserveReturn("success")
	metrics.DecrementActiveLoans()
	s.logger.Info("book returned",
		slog.String("loan_id", loanID),
		slog.String("book_id", loan.BookID),
		slog.String("user_id", loan.UserID),
	)

	if s.broadcaster != nil {
		s.broadcaster.Publish(events.NewLoanEvent(events.EventReturn, loan, now))
	}
	return loan, nil
}

// DeleteLoan removes a loan record. Administrative escape hatch; it does
// not touch the ledger, matching its out-of-band contract.
func (s *LoanService) DeleteLoan(ctx context.Context, loanID string) error {
	if err := s.loans.Delete(ctx, loanID); err != nil {
		return err
	}
	s.logger.Warn("loan deleted administratively", slog.String("loan_id", loanID))
	return nil
}
