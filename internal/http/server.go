package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"spendtracker/internal/auth"
	"spendtracker/internal/core"
	applog "spendtracker/internal/log"
	"spendtracker/internal/middleware/ratelimit"
	"spendtracker/internal/middleware/security"
	"spendtracker/internal/middleware/trace"
	"spendtracker/internal/services"
)

// Deps are the collaborators the API needs.
type Deps struct {
	Ledger     *services.LedgerService
	Categories *services.CategoryService
	Auth       *auth.Service
	Tokens     *auth.TokenIssuer
	// Ready reports store reachability for /readyz.
	Ready              func(context.Context) error
	Logger             *applog.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger     *services.LedgerService
	categories *services.CategoryService
	auth       *auth.Service
	tokens     *auth.TokenIssuer
	ready      func(context.Context) error
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	now        func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		ledger:     deps.Ledger,
		categories: deps.Categories,
		auth:       deps.Auth,
		tokens:     deps.Tokens,
		ready:      deps.Ready,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		now:        time.Now,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/health", handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/categories", s.requireAuth(s.handleListCategories))
	mux.Handle("POST /api/categories", s.requireAuth(s.handleCreateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.requireAuth(s.handleDeleteCategory))

	mux.Handle("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.requireAuth(s.handleAddTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.requireAuth(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction))
	mux.Handle("GET /api/transactions/summary", s.requireAuth(s.handleSummary))

	mux.Handle("GET /api/analytics/category-spending", s.requireAuth(s.handleCategorySpending))
	mux.Handle("GET /api/analytics/monthly-trends", s.requireAuth(s.handleMonthlyTrends))
	mux.Handle("GET /api/dashboard", s.requireAuth(s.handleDashboard))
	mux.Handle("GET /api/export/csv", s.requireAuth(s.handleExportCSV))
	mux.Handle("POST /api/admin/recompute", s.requireAuth(s.handleRecompute))

	tracer := trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		NewResponse().Status(http.StatusTooManyRequests).Message("Rate limit exceeded. Please try again later.").Write(w)
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)
	handler = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireAuth verifies the bearer token and stores the user id in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, r, fmt.Errorf("%w: missing bearer token", core.ErrUnauthorized))
			return
		}
		claims, err := s.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithUserID(r.Context(), claims.UserID)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, claims.UserID))
		next(w, r.WithContext(ctx))
	})
}

// userID is only called behind requireAuth.
func userID(r *http.Request) int64 {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "", map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
