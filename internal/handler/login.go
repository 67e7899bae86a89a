package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/biblioteca/internal/security/audit"
	"github.com/yourorg/biblioteca/internal/security/ratelimit"
	"github.com/yourorg/biblioteca/internal/service"
)

// LoginRequest represents member login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler handles member authentication
type LoginHandler struct {
	authService *service.AuthService
	limiter     *ratelimit.Limiter
	audit       *audit.Logger
	logger      *slog.Logger
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(authService *service.AuthService, limiter *ratelimit.Limiter, auditLog *audit.Logger, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		authService: authService,
		limiter:     limiter,
		audit:       auditLog,
		logger:      logger,
	}
}

// ServeHTTP handles POST /api/login requests
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Stricter window than the general API limit to slow credential guessing
	if h.limiter != nil && !h.limiter.AllowStrict(r.RemoteAddr, 10, time.Minute) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, `{"error":"too many login attempts"}`, http.StatusTooManyRequests)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode login request", slog.String("error", err.Error()))
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, `{"error":"email and password required"}`, http.StatusBadRequest)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.audit != nil {
			h.audit.LogLogin(r.Context(), req.Email, "failed")
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		http.Error(w, `{"error":"login failed"}`, http.StatusInternalServerError)
		return
	}

	if h.audit != nil {
		h.audit.LogLogin(r.Context(), result.UserID, "success")
	}

	writeJSON(w, http.StatusOK, result)
}
