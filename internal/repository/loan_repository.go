package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
)

// PostgresLoanRepository implements domain.LoanRepository using PostgreSQL.
// The two status transitions are guarded UPDATEs: MarkReturned only fires
// while return_date is still NULL, so racing returns resolve to exactly
// one winner at the row level.
type PostgresLoanRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLoanRepository creates a new loan repository
func NewPostgresLoanRepository(db *sql.DB, logger *slog.Logger) *PostgresLoanRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLoanRepository{
		db:     db,
		logger: logger,
	}
}

const loanColumns = `id, book_id, user_id, loan_date, due_date, return_date, status, created_at, updated_at`

// Create persists a new loan
func (r *PostgresLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, book_id, user_id, loan_date, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		loan.ID,
		loan.BookID,
		loan.UserID,
		loan.LoanDate,
		loan.DueDate,
		loan.Status,
	).Scan(&loan.CreatedAt, &loan.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create loan",
			slog.String("id", loan.ID),
			slog.String("book_id", loan.BookID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

// GetByID retrieves a loan by ID
func (r *PostgresLoanRepository) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	loan, err := r.scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		r.logger.Error("failed to get loan by id",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	return loan, nil
}

// List returns all loans, most recent first
func (r *PostgresLoanRepository) List(ctx context.Context) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans ORDER BY loan_date DESC`
	return r.queryLoans(ctx, query)
}

// ListByUser returns a member's loans ordered by loan date descending
func (r *PostgresLoanRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 ORDER BY loan_date DESC`
	return r.queryLoans(ctx, query, userID)
}

// ListOverdue returns unreturned loans whose due date is before now.
// Swept loans carry OVERDUE; unswept ones are still ACTIVE, so both
// statuses qualify.
func (r *PostgresLoanRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE return_date IS NULL
		  AND status IN ('ACTIVE', 'OVERDUE')
		  AND due_date < $1
		ORDER BY due_date
	`
	return r.queryLoans(ctx, query, now)
}

// MarkReturned applies the RETURNED transition. The return_date guard
// makes it atomic per loan: the second of two racing returns affects
// zero rows and gets false.
func (r *PostgresLoanRepository) MarkReturned(ctx context.Context, id string, returnedAt time.Time) (bool, error) {
	query := `
		UPDATE loans
		SET return_date = $2,
		    status = 'RETURNED',
		    updated_at = now()
		WHERE id = $1 AND return_date IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, returnedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark loan returned: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkOverdue persists OVERDUE on an unreturned ACTIVE loan. Used only by
// the sweep worker; the guard keeps it from touching returned loans.
func (r *PostgresLoanRepository) MarkOverdue(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE loans
		SET status = 'OVERDUE',
		    updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE' AND return_date IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark loan overdue: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a loan record (administrative)
func (r *PostgresLoanRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrLoanNotFound
	}

	r.logger.Info("loan deleted", slog.String("loan_id", id))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresLoanRepository) scanLoan(row rowScanner) (*domain.Loan, error) {
	loan := &domain.Loan{}
	var returnDate sql.NullTime

	err := row.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.UserID,
		&loan.LoanDate,
		&loan.DueDate,
		&returnDate,
		&loan.Status,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if returnDate.Valid {
		t := returnDate.Time
		loan.ReturnDate = &t
	}
	return loan, nil
}

func (r *PostgresLoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]*domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := r.scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}
