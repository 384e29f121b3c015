package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/logger"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to an identity. *libauth.Engine
// satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*libauth.Identity, error)
}

const (
	defaultChangePasswordPath = "/users/change-password"
	defaultAuthPrefix         = "/auth/"
)

type pipelineConfig struct {
	changePasswordPath string
	authPrefix         string
	location           *time.Location
	now                func() time.Time
	logger             *zap.Logger
}

// PipelineOption customizes Pipeline.
type PipelineOption func(*pipelineConfig)

// WithChangePasswordPath overrides the endpoint that stays reachable while a
// password change is pending. Matching is case-insensitive and POST only.
func WithChangePasswordPath(path string) PipelineOption {
	return func(c *pipelineConfig) {
		if path != "" {
			c.changePasswordPath = path
		}
	}
}

// WithAuthPrefix overrides the path prefix exempt from the must-change gate.
func WithAuthPrefix(prefix string) PipelineOption {
	return func(c *pipelineConfig) {
		if prefix != "" {
			c.authPrefix = prefix
		}
	}
}

// WithLocation sets the zone of the timestamp in denial bodies.
func WithLocation(loc *time.Location) PipelineOption {
	return func(c *pipelineConfig) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithClock overrides the time source for denial timestamps.
func WithClock(now func() time.Time) PipelineOption {
	return func(c *pipelineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets where rejection causes are logged.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(c *pipelineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Pipeline returns the request security middleware.
//
//   - No bearer token: the request continues as anonymous.
//   - Token rejected or subject unknown: 403 Access denied.
//   - Store unavailable: 503.
//   - Must-change principal outside the allowed routes: 403.
//
// The cause of a rejection is logged, never written to the response.
func Pipeline(authn Authenticator, opts ...PipelineOption) func(http.Handler) http.Handler {
	cfg := pipelineConfig{
		changePasswordPath: defaultChangePasswordPath,
		authPrefix:         defaultAuthPrefix,
		location:           time.UTC,
		now:                time.Now,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.Named("pipeline")
	deny := denier{location: cfg.location, now: cfg.now}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.WithContext(r.Context(), cfg.logger)
			if authn == nil {
				log.Error("pipeline has no authenticator")
				deny.write(w, http.StatusServiceUnavailable, msgUnavailable)
				return
			}

			id, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, libauth.ErrStoreUnavailable) || errors.Is(err, libauth.ErrEngineNotReady) {
					log.Error("bearer authentication unavailable", zap.Error(err))
					deny.write(w, http.StatusServiceUnavailable, msgUnavailable)
					return
				}
				log.Debug("bearer token rejected", zap.Error(err))
				deny.write(w, http.StatusForbidden, msgAccessDenied)
				return
			}

			if libauth.RequiresPasswordChange(id.Principal) && !cfg.allowedWhilePending(r) {
				log.Debug("must-change gate blocked request",
					zap.String("user_id", id.Principal.ID),
					zap.String("path", r.URL.Path),
				)
				deny.write(w, http.StatusForbidden, msgMustChangePassword)
				return
			}

			next.ServeHTTP(w, r.WithContext(libauth.WithIdentity(r.Context(), id)))
		})
	}
}

func (c *pipelineConfig) allowedWhilePending(r *http.Request) bool {
	path := r.URL.Path
	if r.Method == http.MethodPost && strings.EqualFold(path, c.changePasswordPath) {
		return true
	}
	return strings.HasPrefix(path, c.authPrefix)
}

// IdentityFromContext returns the identity attached by Pipeline.
func IdentityFromContext(ctx context.Context) (*libauth.Identity, bool) {
	return libauth.IdentityFromContext(ctx)
}

// bearerToken reports whether value uses the Bearer scheme. An empty token
// after the scheme still counts as present.
func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	return strings.TrimSpace(value[len(bearer):]), true
}
