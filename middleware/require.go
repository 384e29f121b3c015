package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/libauth"
)

// Guards builds authorization middleware that runs after Pipeline. Denials
// use the same body and clock as the pipeline options passed to NewGuards.
type Guards struct {
	deny denier
}

// NewGuards accepts the pipeline options; only WithLocation and WithClock
// have an effect.
func NewGuards(opts ...PipelineOption) Guards {
	cfg := pipelineConfig{location: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return Guards{deny: denier{location: cfg.location, now: cfg.now}}
}

// RequireAuthenticated rejects anonymous requests with 401 Unauthenticated.
func (g Guards) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.require(func(*libauth.Identity) bool { return true })
}

// RequireRoles admits principals holding at least one of roles. Anonymous
// requests get 401; authenticated ones without a match get 403.
func (g Guards) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return g.require(func(id *libauth.Identity) bool {
		for _, role := range roles {
			if id.HasAuthority(role) {
				return true
			}
		}
		return false
	})
}

// RequireAccountTypes admits principals whose account type is one of types.
func (g Guards) RequireAccountTypes(types ...libauth.AccountType) func(http.Handler) http.Handler {
	return g.require(func(id *libauth.Identity) bool {
		for _, t := range types {
			if id.Principal.Type == t {
				return true
			}
		}
		return false
	})
}

func (g Guards) require(allowed func(*libauth.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := libauth.IdentityFromContext(r.Context())
			if !ok {
				g.deny.write(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			if !allowed(id) {
				g.deny.write(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated is NewGuards().RequireAuthenticated.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return NewGuards().RequireAuthenticated()
}

// RequireRoles is NewGuards().RequireRoles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return NewGuards().RequireRoles(roles...)
}

// RequireAccountTypes is NewGuards().RequireAccountTypes.
func RequireAccountTypes(types ...libauth.AccountType) func(http.Handler) http.Handler {
	return NewGuards().RequireAccountTypes(types...)
}
