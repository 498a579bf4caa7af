// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/accounts"
	"ledger/internal/cache"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/taxonomy"
)

// Deps are the services the API exposes.
type Deps struct {
	Accounts *accounts.Manager
	Taxonomy *taxonomy.Manager
	Ledger   *ledger.Service
	Tokens   *TokenIssuer
	Logger   *log.Logger

	// RateLimit is the number of writes per minute allowed per client,
	// 0 disables limiting.
	RateLimit int
}

type Server struct {
	http.Server
	accounts *accounts.Manager
	taxonomy *taxonomy.Manager
	ledger   *ledger.Service
	tokens   *TokenIssuer
	logger   *log.Logger

	detector    *security.Detector
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter
	caches      *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		accounts: deps.Accounts,
		taxonomy: deps.Taxonomy,
		ledger:   deps.Ledger,
		tokens:   deps.Tokens,
		logger:   logger,
		detector: security.NewDetector(),
		tracer:   trace.NewMiddleware(),
	}

	if deps.RateLimit > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimit})
	}

	if stats := deps.Ledger.StatsCache(); stats != nil {
		s.caches = cache.NewManager(func(removed int) {
			logger.Debug("Cache cleanup completed", "entries_removed", removed)
		})
		s.caches.Register(stats)
		s.caches.StartCleanup(10 * time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.Handle("GET /api/records", s.requireAuth(s.handleListRecords))
	mux.Handle("POST /api/records", s.requireAuth(s.handleAddRecord))
	mux.Handle("PATCH /api/records/{index}", s.requireAuth(s.handleUpdateRecord))
	mux.Handle("DELETE /api/records/{index}", s.requireAuth(s.handleDeleteRecord))
	mux.Handle("GET /api/records/id/{id}", s.requireAuth(s.handleGetRecordByID))
	mux.Handle("PATCH /api/records/id/{id}", s.requireAuth(s.handleUpdateRecordByID))
	mux.Handle("DELETE /api/records/id/{id}", s.requireAuth(s.handleDeleteRecordByID))

	mux.Handle("GET /api/stats", s.requireAuth(s.handleStats))
	mux.Handle("GET /api/budget", s.requireAuth(s.handleGetBudget))
	mux.Handle("PUT /api/budget", s.requireAuth(s.handleSetBudget))

	mux.Handle("GET /api/categories", s.requireAuth(s.handleListCategories))
	mux.Handle("POST /api/categories/{kind}/{name}", s.requireAdmin(s.handleAddCategory))
	mux.Handle("DELETE /api/categories/{kind}/{name}", s.requireAdmin(s.handleRemoveCategory))

	mux.Handle("PUT /api/users/{username}/password", s.requireAdmin(s.handleChangePassword))
	mux.Handle("GET /api/metrics", s.requireAdmin(s.handleMetrics))

	var handler http.Handler = mux
	handler = s.limitWrites(handler)
	handler = s.detector.Middleware(func(r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, s.detector.ExtractClientIP(r))
	})(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(logger, s.detector.ExtractClientIP)(handler)
	s.Handler = handler

	return s
}

// limitWrites applies the rate limiter to mutating requests only.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, envelope{Message: "rate limit exceeded, please try again later"})
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.caches != nil {
			s.caches.Stop()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

type metricsResponse struct {
	Requests   trace.Metrics             `json:"requests"`
	Security   security.DetectionMetrics `json:"security"`
	RateLimit  *ratelimit.Metrics        `json:"rate_limit,omitempty"`
	StatsCache int                       `json:"stats_cache_entries"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := metricsResponse{
		Requests: s.tracer.GetMetrics(),
		Security: s.detector.GetMetrics(),
	}
	if s.rateLimiter != nil {
		rl := s.rateLimiter.GetMetrics()
		m.RateLimit = &rl
	}
	if stats := s.ledger.StatsCache(); stats != nil {
		m.StatsCache = stats.Size()
	}
	writeOK(w, http.StatusOK, "", m)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
