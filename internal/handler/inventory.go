package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yourorg/biblioteca/internal/ledger"
	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/middleware"
)

// AdjustCopiesRequest represents a change to a book's owned-copy count
type AdjustCopiesRequest struct {
	TotalCopies int `json:"totalCopies"`
}

// InventoryHandler applies catalog-driven copy count changes (librarian only)
type InventoryHandler struct {
	ledger     *ledger.Ledger
	authorizer *security.Authorizer
	logger     *slog.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(lg *ledger.Ledger, authorizer *security.Authorizer, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		ledger:     lg,
		authorizer: authorizer,
		logger:     logger,
	}
}

// ServeHTTP handles PUT /api/books/{id}/copies requests
func (h *InventoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bookID := r.PathValue("id")
	if bookID == "" {
		http.Error(w, "missing book id", http.StatusBadRequest)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if !h.authorizer.CanAdjustInventory(claims) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "librarian role required"})
		return
	}

	var req AdjustCopiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.TotalCopies < 0 {
		http.Error(w, "totalCopies must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.ledger.AdjustTotal(r.Context(), bookID, req.TotalCopies); err != nil {
		writeDomainError(w, err)
		return
	}

	total, available, err := h.ledger.Counters(r.Context(), bookID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"totalCopies":     total,
		"availableCopies": available,
	})
}
