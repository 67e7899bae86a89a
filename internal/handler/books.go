package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/service"
)

// BookResponse is the wire shape of a catalog book
type BookResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ISBN            string    `json:"isbn"`
	AuthorID        string    `json:"authorId"`
	PublicationYear int       `json:"publicationYear,omitempty"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// AvailableBooksHandler lists books with lendable copies
type AvailableBooksHandler struct {
	querySvc *service.LoanQueryService
	logger   *slog.Logger
}

// NewAvailableBooksHandler creates a new available-books handler
func NewAvailableBooksHandler(querySvc *service.LoanQueryService, logger *slog.Logger) *AvailableBooksHandler {
	return &AvailableBooksHandler{
		querySvc: querySvc,
		logger:   logger,
	}
}

// ServeHTTP handles GET /api/books/available requests
func (h *AvailableBooksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	books, err := h.querySvc.GetAvailableBooks(r.Context())
	if err != nil {
		h.logger.Error("failed to list available books", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"books": toBookResponses(books)})
}

func toBookResponses(books []*domain.Book) []BookResponse {
	out := make([]BookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, BookResponse{
			ID:              b.ID,
			Title:           b.Title,
			ISBN:            b.ISBN,
			AuthorID:        b.AuthorID,
			PublicationYear: b.PublicationYear,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
			UpdatedAt:       b.UpdatedAt,
		})
	}
	return out
}
