package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/biblioteca/internal/domain"
)

// PostgresBookRepository implements domain.BookRepository using PostgreSQL.
// The counter methods rely on guarded UPDATEs so each mutation is atomic
// per row; the ledger adds the per-book serialization and bounded waits
// on top.
type PostgresBookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBookRepository creates a new book repository
func NewPostgresBookRepository(db *sql.DB, logger *slog.Logger) *PostgresBookRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBookRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a book by ID
func (r *PostgresBookRepository) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	book := &domain.Book{}

	query := `
		SELECT id, title, isbn, author_id, publication_year, description,
		       total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&book.ID,
		&book.Title,
		&book.ISBN,
		&book.AuthorID,
		&book.PublicationYear,
		&book.Description,
		&book.TotalCopies,
		&book.AvailableCopies,
		&book.CreatedAt,
		&book.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		r.logger.Error("failed to get book by id",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	return book, nil
}

// Save inserts or updates a book's catalog fields. Copy counters are not
// written here; they belong to the ledger.
func (r *PostgresBookRepository) Save(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (id, title, isbn, author_id, publication_year, description, total_copies, available_copies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			isbn = EXCLUDED.isbn,
			author_id = EXCLUDED.author_id,
			publication_year = EXCLUDED.publication_year,
			description = EXCLUDED.description,
			updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		book.ID,
		book.Title,
		book.ISBN,
		book.AuthorID,
		book.PublicationYear,
		book.Description,
		book.TotalCopies,
	).Scan(&book.CreatedAt, &book.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to save book",
			slog.String("id", book.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to save book: %w", err)
	}

	return nil
}

// List returns all books
func (r *PostgresBookRepository) List(ctx context.Context) ([]*domain.Book, error) {
	query := `
		SELECT id, title, isbn, author_id, publication_year, description,
		       total_copies, available_copies, created_at, updated_at
		FROM books
		ORDER BY title
	`
	return r.queryBooks(ctx, query)
}

// ListAvailable returns books with at least one lendable copy
func (r *PostgresBookRepository) ListAvailable(ctx context.Context) ([]*domain.Book, error) {
	query := `
		SELECT id, title, isbn, author_id, publication_year, description,
		       total_copies, available_copies, created_at, updated_at
		FROM books
		WHERE available_copies > 0
		ORDER BY title
	`
	return r.queryBooks(ctx, query)
}

func (r *PostgresBookRepository) queryBooks(ctx context.Context, query string, args ...any) ([]*domain.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book := &domain.Book{}
		if err := rows.Scan(
			&book.ID,
			&book.Title,
			&book.ISBN,
			&book.AuthorID,
			&book.PublicationYear,
			&book.Description,
			&book.TotalCopies,
			&book.AvailableCopies,
			&book.CreatedAt,
			&book.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}

	return books, rows.Err()
}

// ReserveCopy decrements available_copies if a copy is on the shelf.
// The WHERE guard makes the decrement atomic per row; zero rows affected
// means no copies were available.
func (r *PostgresBookRepository) ReserveCopy(ctx context.Context, bookID string) (bool, error) {
	query := `
		UPDATE books
		SET available_copies = available_copies - 1,
		    updated_at = now()
		WHERE id = $1 AND available_copies > 0
	`

	res, err := r.db.ExecContext(ctx, query, bookID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve copy: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseCopy increments available_copies unless the book is already at
// its total. Zero rows affected means the increment would have exceeded
// total_copies.
func (r *PostgresBookRepository) ReleaseCopy(ctx context.Context, bookID string) (bool, error) {
	query := `
		UPDATE books
		SET available_copies = available_copies + 1,
		    updated_at = now()
		WHERE id = $1 AND available_copies < total_copies
	`

	res, err := r.db.ExecContext(ctx, query, bookID)
	if err != nil {
		return false, fmt.Errorf("failed to release copy: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetTotalCopies updates the owned-copy count, clamping available down
// when the new total is smaller.
func (r *PostgresBookRepository) SetTotalCopies(ctx context.Context, bookID string, total int) error {
	query := `
		UPDATE books
		SET total_copies = $2,
		    available_copies = LEAST(available_copies, $2),
		    updated_at = now()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, bookID, total)
	if err != nil {
		return fmt.Errorf("failed to set total copies: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// Counters returns (total, available) for a book
func (r *PostgresBookRepository) Counters(ctx context.Context, bookID string) (int, int, error) {
	var total, available int

	query := `
		SELECT total_copies, available_copies
		FROM books
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, bookID).Scan(&total, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.ErrBookNotFound
		}
		return 0, 0, fmt.Errorf("failed to read counters: %w", err)
	}

	return total, available, nil
}
