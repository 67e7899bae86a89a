package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/middleware"
	"github.com/yourorg/biblioteca/internal/service"
)

// CheckoutRequest represents a request to lend a book to a member
type CheckoutRequest struct {
	BookID string `json:"bookId"`
	UserID string `json:"userId"`
}

// CheckoutHandler handles checkout requests
type CheckoutHandler struct {
	loanService *service.LoanService
	authorizer  *security.Authorizer
	logger      *slog.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(loanService *service.LoanService, authorizer *security.Authorizer, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		loanService: loanService,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// ServeHTTP handles POST /api/checkout requests
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode checkout request", slog.String("error", err.Error()))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if req.BookID == "" {
		http.Error(w, "bookId is required", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		if !h.authorizer.CanCheckoutFor(claims, req.UserID) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot check out for another member"})
			return
		}
	}

	loan, err := h.loanService.Checkout(r.Context(), req.BookID, req.UserID, time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoanResponse(loan))
}
