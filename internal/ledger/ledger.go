// Package ledger owns the per-book copy counters and their atomicity
// guarantees. Every mutation of a book's availability passes through
// Reserve, Release or AdjustTotal; callers never touch the counters
// directly.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/observability/metrics"
)

// Reservation is the token returned by a successful Reserve. The loan
// lifecycle stores it alongside the loan it creates so the decrement and
// the loan record can be correlated.
type Reservation struct {
	Token    string
	BookID   string
	Reserved time.Time
}

// Ledger guarantees 0 <= available_copies <= total_copies for every book,
// including under concurrent requests against the same book. All counter
// mutations for one book are serialized on that book's lock; different
// books proceed independently.
type Ledger struct {
	counters domain.CopyCounterStore
	locks    *keyedMutex
	logger   *slog.Logger
}

// New creates a ledger over a counter store. maxWait bounds how long a
// caller may wait for a book's serialization point.
func New(counters domain.CopyCounterStore, logger *slog.Logger, maxWait time.Duration) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &Ledger{
		counters: counters,
		locks:    newKeyedMutex(maxWait),
		logger:   logger,
	}
}

// Reserve atomically takes one copy of a book. Exactly one of two
// concurrent reservations for the last copy succeeds; the other gets
// ErrNoCopiesAvailable.
func (l *Ledger) Reserve(ctx context.Context, bookID string) (*Reservation, error) {
	if err := l.locks.Lock(ctx, bookID); err != nil {
		return nil, err
	}
	defer l.locks.Unlock(bookID)

	ok, err := l.counters.ReserveCopy(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("reserve copy of book %s: %w", bookID, err)
	}
	if !ok {
		metrics.ObserveReservation("unavailable")
		return nil, domain.ErrNoCopiesAvailable
	}

	metrics.ObserveReservation("reserved")
	res := &Reservation{
		Token:    uuid.NewString(),
		BookID:   bookID,
		Reserved: time.Now(),
	}
	l.logger.Debug("copy reserved",
		slog.String("book_id", bookID),
		slog.String("reservation", res.Token),
	)
	return res, nil
}

// Release returns one copy of a book to the shelf. A release that would
// push available past total means a reserve/release pairing bug somewhere
// upstream; it is reported as ErrLedgerInconsistency, not clamped.
func (l *Ledger) Release(ctx context.Context, bookID string) error {
	if err := l.locks.Lock(ctx, bookID); err != nil {
		return err
	}
	defer l.locks.Unlock(bookID)

	ok, err := l.counters.ReleaseCopy(ctx, bookID)
	if err != nil {
		return fmt.Errorf("release copy of book %s: %w", bookID, err)
	}
	if !ok {
		metrics.ObserveLedgerInconsistency("release_beyond_total")
		l.logger.Error("release would exceed total copies",
			slog.String("book_id", bookID),
		)
		return fmt.Errorf("book %s: release beyond total copies: %w", bookID, domain.ErrLedgerInconsistency)
	}

	metrics.ObserveReservation("released")
	l.logger.Debug("copy released", slog.String("book_id", bookID))
	return nil
}

// AdjustTotal applies a catalog-driven change of a book's copy count,
// keeping available <= total. Excess available copies are considered
// retired, not loaned-against, so clamping down here is legitimate.
func (l *Ledger) AdjustTotal(ctx context.Context, bookID string, newTotal int) error {
	if newTotal < 0 {
		return fmt.Errorf("book %s: negative total copies %d", bookID, newTotal)
	}
	if err := l.locks.Lock(ctx, bookID); err != nil {
		return err
	}
	defer l.locks.Unlock(bookID)

	if err := l.counters.SetTotalCopies(ctx, bookID, newTotal); err != nil {
		return fmt.Errorf("adjust total of book %s: %w", bookID, err)
	}
	l.logger.Info("total copies adjusted",
		slog.String("book_id", bookID),
		slog.Int("total", newTotal),
	)
	return nil
}

// Counters exposes the current (total, available) pair for a book.
// Read-only; used by invariant checks and the readiness probe.
func (l *Ledger) Counters(ctx context.Context, bookID string) (int, int, error) {
	return l.counters.Counters(ctx, bookID)
}
