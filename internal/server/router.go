package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/mehmetcc/tenantcore/internal/auth"
	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/httpx"
	"github.com/mehmetcc/tenantcore/internal/metrics"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
	"moul.io/chizap"
)

// Pinger is anything /healthz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AuthHandler   auth.AuthenticationHandler
	PersonHandler person.PersonHandler
	Gate          *auth.AuthGate
	Store         Pinger
	Metrics       *metrics.Metrics
	RateLimit     *config.RateLimitConfig
	CORSOrigins   []string
	Development   bool
	Logger        *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(chizap.New(cfg.Logger, &chizap.Opts{
		WithReferer:   true,
		WithUserAgent: true,
	}))
	r.Use(chimid.Recoverer)
	r.Use(secure.New(SecureOptions(cfg.Development)).Handler)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Device-Id", "X-Device-Name", "X-Client-Platform", "X-App-Version"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", health(cfg.Store, cfg.Logger))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		if cfg.RateLimit != nil && cfg.RateLimit.AuthRequests > 0 {
			r.Use(authRateLimit(cfg.RateLimit))
		}
		r.Mount("/", cfg.AuthHandler.Routes())
	})

	r.Route("/persons", func(r chi.Router) {
		r.Use(cfg.Gate.Handler)
		r.Use(auth.RequireRole(person.RoleAdmin))
		r.Mount("/", cfg.PersonHandler.Routes())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorResponse[any]{
			Code:    httpx.ErrNotFound,
			Message: "route not found",
		})
	})

	return r
}

// SecureOptions are the response headers every route gets.
func SecureOptions(isDevelopment bool) secure.Options {
	return secure.Options{
		IsDevelopment:         isDevelopment,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

// authRateLimit throttles the credential endpoints per client IP. RealIP
// has already rewritten RemoteAddr by the time it runs.
func authRateLimit(cfg *config.RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.AuthRequests,
		cfg.AuthWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, http.StatusTooManyRequests, httpx.ErrorResponse[any]{
				Code:    httpx.ErrTooManyRequests,
				Message: "too many requests",
			})
		}),
	)
}

func health(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.ErrorResponse[any]{
				Code:    httpx.ErrInternal,
				Message: "store unavailable",
			})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
