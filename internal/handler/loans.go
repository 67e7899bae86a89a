package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/middleware"
	"github.com/yourorg/biblioteca/internal/service"
)

// LoansHandler serves the read side of the lending API plus the
// administrative delete. Every read derives loan statuses at the request
// instant; nothing here mutates ledger or loan state.
type LoansHandler struct {
	querySvc    *service.LoanQueryService
	loanService *service.LoanService
	authorizer  *security.Authorizer
	logger      *slog.Logger
}

// NewLoansHandler creates a new loans handler
func NewLoansHandler(querySvc *service.LoanQueryService, loanService *service.LoanService, authorizer *security.Authorizer, logger *slog.Logger) *LoansHandler {
	return &LoansHandler{
		querySvc:    querySvc,
		loanService: loanService,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// List handles GET /api/loans
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.querySvc.GetAll(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("failed to list loans", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loans": toLoanResponses(loans)})
}

// GetByID handles GET /api/loans/{id}
func (h *LoansHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	loanID := r.PathValue("id")
	if loanID == "" {
		http.Error(w, "missing loan id", http.StatusBadRequest)
		return
	}

	loan, err := h.querySvc.GetByID(r.Context(), loanID, time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

// ByUser handles GET /api/users/{id}/loans. An unknown member gets an
// empty list, not a 404.
func (h *LoansHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		if !h.authorizer.CanViewUserLoans(claims, userID) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot view another member's loans"})
			return
		}
	}

	loans, err := h.querySvc.GetByUser(r.Context(), userID, time.Now())
	if err != nil {
		h.logger.Error("failed to list user loans",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loans": toLoanResponses(loans)})
}

// Overdue handles GET /api/loans/overdue
func (h *LoansHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.querySvc.GetOverdue(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("failed to list overdue loans", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loans": toLoanResponses(loans)})
}

// Delete handles DELETE /api/loans/{id} (librarian only)
func (h *LoansHandler) Delete(w http.ResponseWriter, r *http.Request) {
	loanID := r.PathValue("id")
	if loanID == "" {
		http.Error(w, "missing loan id", http.StatusBadRequest)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if !h.authorizer.CanDeleteLoan(claims) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "librarian role required"})
		return
	}

	if err := h.loanService.DeleteLoan(r.Context(), loanID); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
