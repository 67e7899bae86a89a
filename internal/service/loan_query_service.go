package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/pkg/cache"
)

const availableBooksCacheKey = "books:available"

// LoanQueryService is the read side of the lending core. It never mutates
// ledger or loan state; overdue status is derived from the stored dates
// at query time.
type LoanQueryService struct {
	loans  domain.LoanRepository
	books  domain.BookRepository
	cache  *cache.Cache[[]*domain.Book]
	logger *slog.Logger
}

// NewLoanQueryService creates a new query service
func NewLoanQueryService(loans domain.LoanRepository, books domain.BookRepository, c *cache.Cache[[]*domain.Book], logger *slog.Logger) *LoanQueryService {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoanQueryService{
		loans:  loans,
		books:  books,
		cache:  c,
		logger: logger,
	}
}

// GetByID returns one loan with its status derived at now
func (s *LoanQueryService) GetByID(ctx context.Context, id string, now time.Time) (*domain.Loan, error) {
	loan, err := s.loans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return withDerivedStatus(loan, now), nil
}

// GetByUser returns a member's loans, most recent first, statuses derived
// at now. An unknown member yields an empty list, not an error.
func (s *LoanQueryService) GetByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Loan, error) {
	loans, err := s.loans.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return withDerivedStatuses(loans, now), nil
}

// GetAll returns every loan, statuses derived at now
func (s *LoanQueryService) GetAll(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	loans, err := s.loans.List(ctx)
	if err != nil {
		return nil, err
	}
	return withDerivedStatuses(loans, now), nil
}

// GetOverdue returns unreturned loans past their due date at now. Purely
// derivational: reads never trigger a sweep.
func (s *LoanQueryService) GetOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	loans, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	return withDerivedStatuses(loans, now), nil
}

// GetAvailableBooks returns books with lendable copies. Served from the
// in-process cache with a short TTL; availability changes show up within
// the TTL window, which is acceptable for a browse listing.
func (s *LoanQueryService) GetAvailableBooks(ctx context.Context) ([]*domain.Book, error) {
	if s.cache != nil {
		if books, ok := s.cache.Get(availableBooksCacheKey); ok {
			return books, nil
		}
	}

	books, err := s.books.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(availableBooksCacheKey, books, 5*time.Second)
	}
	return books, nil
}

// withDerivedStatus copies the loan with its reporting status at now so
// the stored record is never mutated by a read.
func withDerivedStatus(loan *domain.Loan, now time.Time) *domain.Loan {
	derived := loan.StatusAt(now)
	if derived == loan.Status {
		return loan
	}
	out := *loan
	out.Status = derived
	return &out
}

func withDerivedStatuses(loans []*domain.Loan, now time.Time) []*domain.Loan {
	out := make([]*domain.Loan, 0, len(loans))
	for _, loan := range loans {
		out = append(out, withDerivedStatus(loan, now))
	}
	return out
}
