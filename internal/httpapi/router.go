package httpapi

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options wires the router.
type Options struct {
	Engine *libauth.Engine
	Logger *zap.Logger

	// Location is the zone of error timestamps. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time

	// Metrics records per-route request metrics when set.
	Metrics *HTTPMetrics
	// Gatherer is exposed on GET /metrics when set.
	Gatherer prometheus.Gatherer

	// TrustedProxies are the peers whose X-Forwarded-For header is honoured.
	// Empty means the header is ignored.
	TrustedProxies []netip.Prefix
}

// Handler serves the auth endpoints.
type Handler struct {
	engine    *libauth.Engine
	logger    *zap.Logger
	responder responder
}

// NewRouter registers the routes and the middleware stack.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	h := &Handler{
		engine:    opts.Engine,
		logger:    log,
		responder: responder{location: loc, now: now},
	}

	pipelineOpts := []middleware.PipelineOption{
		middleware.WithLocation(loc),
		middleware.WithClock(now),
		middleware.WithLogger(log),
	}
	guards := middleware.NewGuards(pipelineOpts...)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(log, h.responder))
	proxies := trustedProxies(opts.TrustedProxies)
	r.Use(accessLogMiddleware(log, proxies))
	r.Use(opts.Metrics.Handler)
	r.Use(clientIPMiddleware(proxies))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", h.healthz)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Pipeline(opts.Engine, pipelineOpts...))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/sign-in", h.signIn)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/reset-password", h.resetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(guards.RequireAuthenticated())
			r.Get("/users/me", h.me)
			r.Post("/users/change-password", h.changePassword)
			r.Group(func(r chi.Router) {
				r.Use(guards.RequireAccountTypes(libauth.AccountAdmin, libauth.AccountSubAdmin))
				r.Post("/users/{id}/reset-password", h.adminResetPassword)
				r.Put("/users/{id}/status", h.setAccountStatus)
			})
		})
	})

	return r
}
