package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/observability/metrics"
	"github.com/yourorg/biblioteca/internal/reliability/retry"
)

// OverdueWorker periodically persists OVERDUE on unreturned loans past
// their due date. The sweep is an optional reporting aid: queries derive
// overdue status from the dates regardless, so a missed or late sweep
// never changes what callers observe.
type OverdueWorker struct {
	loans    domain.LoanRepository
	logger   *slog.Logger
	interval time.Duration
	retryCfg *retry.Config
}

// NewOverdueWorker creates a new overdue sweep worker
func NewOverdueWorker(loans domain.LoanRepository, logger *slog.Logger, interval time.Duration) *OverdueWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &OverdueWorker{
		loans:    loans,
		logger:   logger,
		interval: interval,
		retryCfg: retry.SweepDefaults(),
	}
}

// Start begins the sweep loop. Runs until ctx is cancelled.
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("overdue sweep worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue sweep worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx, time.Now())
		}
	}
}

// Sweep marks every unreturned loan past its due date as OVERDUE. Returns
// the number of loans marked.
func (w *OverdueWorker) Sweep(ctx context.Context, now time.Time) int {
	overdue, err := w.loans.ListOverdue(ctx, now)
	if err != nil {
		w.logger.Error("failed to list overdue loans", slog.String("error", err.Error()))
		metrics.ObserveOverdueSweep("list_error")
		return 0
	}

	marked := 0
	for _, loan := range overdue {
		if loan.Status != domain.LoanStatusActive {
			continue // already swept
		}

		loanID := loan.ID
		ok, err := retry.Do(ctx, w.retryCfg, w.logger, "mark_overdue", func(ctx context.Context) (bool, error) {
			return w.loans.MarkOverdue(ctx, loanID)
		})
		if err != nil {
			w.logger.Error("failed to mark loan overdue",
				slog.String("loan_id", loanID),
				slog.String("error", err.Error()),
			)
			metrics.ObserveOverdueSweep("mark_error")
			continue
		}
		if ok {
			marked++
		}
	}

	if marked > 0 {
		w.logger.Info("overdue sweep completed",
			slog.Int("marked", marked),
			slog.Int("candidates", len(overdue)),
		)
	}
	metrics.ObserveOverdueSweep("success")
	return marked
}
