package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/events"
	"github.com/yourorg/biblioteca/internal/featureflags"
	"github.com/yourorg/biblioteca/internal/handler"
	"github.com/yourorg/biblioteca/internal/infrastructure/logger"
	"github.com/yourorg/biblioteca/internal/infrastructure/redis"
	"github.com/yourorg/biblioteca/internal/ledger"
	"github.com/yourorg/biblioteca/internal/observability/metrics"
	"github.com/yourorg/biblioteca/internal/observability/tracing"
	"github.com/yourorg/biblioteca/internal/repository"
	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/audit"
	"github.com/yourorg/biblioteca/internal/security/auth"
	"github.com/yourorg/biblioteca/internal/security/middleware"
	"github.com/yourorg/biblioteca/internal/security/ratelimit"
	"github.com/yourorg/biblioteca/internal/service"
	"github.com/yourorg/biblioteca/internal/worker"
	"github.com/yourorg/biblioteca/pkg/cache"
	"github.com/yourorg/biblioteca/pkg/config"
	"github.com/yourorg/biblioteca/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting biblioteca server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op when no endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "biblioteca", cfg.Environment)
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
	} else {
		defer shutdownTracing(context.Background())
	}

	// 4. Connect to Postgres
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.DatabaseHost,
		Port:     cfg.DatabasePort,
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Connect to Redis. A missing Redis degrades to uncached reads
	// rather than preventing startup.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, loan reads are uncached", slog.String("error", err.Error()))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// 6. Initialize repositories
	bookRepo := repository.NewPostgresBookRepository(pool.DB(), log)
	userRepo := repository.NewPostgresUserRepository(pool.DB(), log)
	loanRepo := repository.NewPostgresLoanRepository(pool.DB(), log)
	loanStore := wrapLoanCache(loanRepo, redisClient, cfg, log)

	// 7. Initialize the availability ledger over the book counters
	availLedger := ledger.New(bookRepo, log, cfg.LockWait())

	// 8. Initialize security components
	tokenManager := auth.NewTokenManager(os.Getenv("JWT_SECRET"), "biblioteca")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)
	authorizer := security.NewAuthorizer()

	// 8a. Initialize services
	broadcaster := events.NewBroadcaster()
	loanService := service.NewLoanService(availLedger, loanStore, bookRepo, userRepo, broadcaster, log, cfg)
	querySvc := service.NewLoanQueryService(loanStore, bookRepo, cache.New[[]*domain.Book](), log)
	authService := service.NewAuthService(userRepo, tokenManager, 24*time.Hour, log)

	// 9. Initialize handlers
	checkoutHandler := handler.NewCheckoutHandler(loanService, authorizer, log)
	returnHandler := handler.NewReturnHandler(loanService, querySvc, authorizer, log)
	loansHandler := handler.NewLoansHandler(querySvc, loanService, authorizer, log)
	booksHandler := handler.NewAvailableBooksHandler(querySvc, log)
	loginHandler := handler.NewLoginHandler(authService, rateLimiter, auditLogger, log)
	inventoryHandler := handler.NewInventoryHandler(availLedger, authorizer, log)
	activityHandler := handler.NewActivityHandler(broadcaster, log, cfg.CORSAllowedOrigins)
	healthHandler := handler.NewHealthHandler(pool, redisClient, log)

	// 10. Setup HTTP routes
	mux := http.NewServeMux()
	mux.Handle("POST /api/login", loginHandler)
	mux.Handle("POST /api/checkout", checkoutHandler)
	mux.Handle("POST /api/loans/{id}/return", returnHandler)
	mux.HandleFunc("GET /api/loans", loansHandler.List)
	mux.HandleFunc("GET /api/loans/overdue", loansHandler.Overdue)
	mux.HandleFunc("GET /api/loans/{id}", loansHandler.GetByID)
	mux.HandleFunc("DELETE /api/loans/{id}", loansHandler.Delete)
	mux.HandleFunc("GET /api/users/{id}/loans", loansHandler.ByUser)
	mux.Handle("GET /api/books/available", booksHandler)
	mux.Handle("PUT /api/books/{id}/copies", inventoryHandler)
	mux.Handle("GET /ws/activity", activityHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler.Health)
	mux.HandleFunc("/readyz", healthHandler.Ready)

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> JWT -> rate limit -> audit -> content
	// type -> CORS. JWT runs first so the limiter keys on the member and the
	// audit log has a real actor.
	rootHandler := withRequestID(
		middleware.JWTMiddleware(tokenManager, log)(
			middleware.RateLimitMiddleware(rateLimiter, log)(
				middleware.AuditMiddleware(auditLogger)(
					middleware.ValidateJSONContentType(log)(handlerWithCORS),
				),
			),
		),
		log,
	)

	// Instrument the whole surface: OTel spans outside, Prometheus inside
	instrumented := otelhttp.NewHandler(metrics.HTTPMetricsMiddleware(rootHandler), "biblioteca.http")

	// 11. Optionally start the overdue sweep worker
	if featureflags.Enabled("overdue_sweep") {
		sweepWorker := worker.NewOverdueWorker(loanStore, log, cfg.SweepInterval())
		go sweepWorker.Start(ctx)
		log.Info("overdue sweep worker enabled", slog.Duration("interval", cfg.SweepInterval()))
	}

	// 12. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      instrumented,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop background worker
	rateLimiter.Stop()
	log.Info("server stopped")
}

// wrapLoanCache decorates the loan repository with the Redis read cache
// when Redis is reachable, and passes it through untouched otherwise.
func wrapLoanCache(inner *repository.PostgresLoanRepository, redisClient *redis.Client, cfg *config.Config, log *slog.Logger) domain.LoanRepository {
	if redisClient == nil {
		return inner
	}
	return repository.NewCachedLoanRepository(inner, redisClient, cfg.LoanCacheTTL(), log)
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
