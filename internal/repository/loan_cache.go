package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/infrastructure/redis"
	"github.com/yourorg/biblioteca/internal/reliability/circuitbreaker"
)

// CachedLoanRepository decorates a LoanRepository with a Redis read cache
// for the hot lookups (loan by id, loans by member). Writes go straight
// through and invalidate the affected keys. A circuit breaker guards the
// Redis calls so a cache outage degrades to plain Postgres reads instead
// of failing requests.
type CachedLoanRepository struct {
	inner   domain.LoanRepository
	redis   *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedLoanRepository creates the caching decorator
func NewCachedLoanRepository(inner domain.LoanRepository, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLoanRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	breaker := circuitbreaker.NewCircuitBreaker("loan-cache", 5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("loan cache breaker state change",
			slog.String("breaker", breaker.Name()),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &CachedLoanRepository{
		inner:   inner,
		redis:   redisClient,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
	}
}

func loanKey(id string) string          { return fmt.Sprintf("loan:%s", id) }
func userLoansKey(userID string) string { return fmt.Sprintf("loans:user:%s", userID) }

// GetByID serves from cache when possible
func (r *CachedLoanRepository) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	if data, ok := r.cacheGet(ctx, loanKey(id)); ok {
		var loan domain.Loan
		if err := json.Unmarshal([]byte(data), &loan); err == nil {
			return &loan, nil
		}
	}

	loan, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheSet(ctx, loanKey(id), loan)
	return loan, nil
}

// ListByUser serves a member's loan list from cache when possible
func (r *CachedLoanRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Loan, error) {
	if data, ok := r.cacheGet(ctx, userLoansKey(userID)); ok {
		var loans []*domain.Loan
		if err := json.Unmarshal([]byte(data), &loans); err == nil {
			return loans, nil
		}
	}

	loans, err := r.inner.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.cacheSet(ctx, userLoansKey(userID), loans)
	return loans, nil
}

// List is uncached: the full loan set is an administrative view
func (r *CachedLoanRepository) List(ctx context.Context) ([]*domain.Loan, error) {
	return r.inner.List(ctx)
}

// ListOverdue is uncached: the result depends on now
func (r *CachedLoanRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	return r.inner.ListOverdue(ctx, now)
}

// Create writes through and invalidates the member's list
func (r *CachedLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	if err := r.inner.Create(ctx, loan); err != nil {
		return err
	}
	r.cacheDelete(ctx, loanKey(loan.ID), userLoansKey(loan.UserID))
	return nil
}

// MarkReturned writes through and invalidates the loan and its member's list
func (r *CachedLoanRepository) MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error) {
	ok, err := r.inner.MarkReturned(ctx, id, returnedAt)
	if err != nil || !ok {
		return ok, err
	}
	r.invalidateLoan(ctx, id)
	return true, nil
}

// MarkOverdue writes through and invalidates the loan and its member's list
func (r *CachedLoanRepository) MarkOverdue(ctx context.Context, id string) (bool, error) {
	ok, err := r.inner.MarkOverdue(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	r.invalidateLoan(ctx, id)
	return true, nil
}

// Delete writes through and invalidates
func (r *CachedLoanRepository) Delete(ctx context.Context, id string) error {
	r.invalidateLoan(ctx, id)
	return r.inner.Delete(ctx, id)
}

// invalidateLoan drops the loan key and, when the loan is still
// resolvable, its member's list key.
func (r *CachedLoanRepository) invalidateLoan(ctx context.Context, id string) {
	keys := []string{loanKey(id)}
	if loan, err := r.inner.GetByID(ctx, id); err == nil {
		keys = append(keys, userLoansKey(loan.UserID))
	}
	r.cacheDelete(ctx, keys...)
}

func (r *CachedLoanRepository) cacheGet(ctx context.Context, key string) (string, bool) {
	if r.redis == nil || !r.breaker.AllowRequest() {
		return "", false
	}

	data, err := r.redis.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) {
			r.breaker.RecordFailure()
			r.logger.Warn("loan cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}

	r.breaker.RecordSuccess()
	return data, true
}

func (r *CachedLoanRepository) cacheSet(ctx context.Context, key string, value any) {
	if r.redis == nil || !r.breaker.AllowRequest() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	if err := r.redis.Set(ctx, key, string(data), r.ttl); err != nil {
		r.breaker.RecordFailure()
		r.logger.Warn("loan cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	r.breaker.RecordSuccess()
}

func (r *CachedLoanRepository) cacheDelete(ctx context.Context, keys ...string) {
	if r.redis == nil || !r.breaker.AllowRequest() {
		return
	}

	if err := r.redis.Delete(ctx, keys...); err != nil {
		r.breaker.RecordFailure()
		r.logger.Warn("loan cache invalidation failed", slog.String("error", err.Error()))
		return
	}
	r.breaker.RecordSuccess()
}
