package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/middleware"
	"github.com/yourorg/biblioteca/internal/service"
)

// ReturnHandler handles loan returns
type ReturnHandler struct {
	loanService *service.LoanService
	querySvc    *service.LoanQueryService
	authorizer  *security.Authorizer
	logger      *slog.Logger
}

// NewReturnHandler creates a new return handler
func NewReturnHandler(loanService *service.LoanService, querySvc *service.LoanQueryService, authorizer *security.Authorizer, logger *slog.Logger) *ReturnHandler {
	return &ReturnHandler{
		loanService: loanService,
		querySvc:    querySvc,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// ServeHTTP handles POST /api/loans/{id}/return requests
func (h *ReturnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loanID := r.PathValue("id")
	if loanID == "" {
		http.Error(w, "missing loan id", http.StatusBadRequest)
		return
	}

	now := time.Now()

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		existing, err := h.querySvc.GetByID(r.Context(), loanID, now)
		if err != nil {
			if errors.Is(err, domain.ErrLoanNotFound) {
				writeDomainError(w, err)
				return
			}
		} else if !h.authorizer.CanReturnLoan(claims, existing.UserID) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot return another member's loan"})
			return
		}
	}

	loan, err := h.loanService.Return(r.Context(), loanID, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}
