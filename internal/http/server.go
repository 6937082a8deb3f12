package http

import (
	"context"
	"net/http"
	"time"

	"household/internal/core"
	applog "household/internal/log"
	"household/internal/metrics"
	"household/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

type (
	RuleManager interface {
		List(ctx context.Context, f core.RuleFilter) ([]services.RuleView, error)
		Get(ctx context.Context, id string) (services.RuleView, error)
		Create(ctx context.Context, rule core.RecurringRule) (services.RuleView, error)
		Update(ctx context.Context, id string, patch core.RulePatch) (services.RuleView, error)
		Delete(ctx context.Context, id string) error
	}

	TransactionManager interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, f core.TransactionFilter) (core.TransactionPage, error)
		UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	// Runner performs one locked generation pass.
	Runner interface {
		Run(ctx context.Context, today core.Date) (services.GenerateResult, error)
	}

	// Directory serves accounts, categories and the readiness probe.
	Directory interface {
		CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		UpdateAccount(ctx context.Context, id string, p core.AccountPatch) (core.Account, error)
		ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error)
		Ping(ctx context.Context) error
	}
)

// Deps wires the API to its services.
type Deps struct {
	Rules        RuleManager
	Transactions TransactionManager
	Runner       Runner
	Directory    Directory
	Metrics      *metrics.Metrics
	Logger       *applog.Logger

	CronSecret         string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	validate *validator.Validate
	runs     singleflight.Group
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if deps.RateLimitPerMinute <= 0 {
		deps.RateLimitPerMinute = 120
	}

	s := &Server{
		deps:     deps,
		validate: newValidator(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(applog.Middleware(s.deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(s.deps.Metrics.Middleware)
	r.Use(securityHeaders)
	r.Use(rejectSuspicious)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.Limit(s.deps.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return extractClientIP(r), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			}),
		))

		r.Post("/recurring/run", s.handleRunRecurring)

		r.Route("/recurring-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Patch("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.Patch("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Patch("/{id}", s.handleUpdateAccount)
		})

		r.Get("/categories", s.handleListCategories)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Directory.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(ctx, "Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
