package domain

import (
	"context"
	"time"
)

// Book represents a catalog title. TotalCopies is the number of physical
// copies the library owns; AvailableCopies the number not currently on
// loan. The invariant 0 <= AvailableCopies <= TotalCopies is owned by the
// availability ledger; nothing else mutates the counters.
type Book struct {
	ID              string
	Title           string
	ISBN            string
	AuthorID        string
	PublicationYear int
	Description     string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Author represents a catalog author
type Author struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// BookRepository defines data access for books
type BookRepository interface {
	GetByID(ctx context.Context, id string) (*Book, error)
	Save(ctx context.Context, book *Book) error
	List(ctx context.Context) ([]*Book, error)
	ListAvailable(ctx context.Context) ([]*Book, error)

	CopyCounterStore
}

// CopyCounterStore is the narrow capability the ledger needs: guarded,
// row-atomic mutations of a book's copy counters. Each mutation reports
// whether the guard held (false means the counter was at its bound).
type CopyCounterStore interface {
	// ReserveCopy decrements available_copies if it is above zero.
	ReserveCopy(ctx context.Context, bookID string) (bool, error)

	// ReleaseCopy increments available_copies if it is below total_copies.
	ReleaseCopy(ctx context.Context, bookID string) (bool, error)

	// SetTotalCopies updates total_copies and clamps available_copies
	// down to the new total when necessary.
	SetTotalCopies(ctx context.Context, bookID string, total int) error

	// Counters returns (total, available) for a book.
	Counters(ctx context.Context, bookID string) (int, int, error)
}
