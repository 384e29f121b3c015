package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/stores"
	"github.com/MrEthical07/libauth/jwt"
)

var testNow = time.Date(2025, time.March, 14, 10, 5, 9, 0, time.UTC)

type fakeAuthenticator map[string]any

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (*libauth.Identity, error) {
	switch v := f[token].(type) {
	case *libauth.Identity:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, fmt.Errorf("%w: %w", libauth.ErrTokenInvalid, jwt.ErrTokenMalformed)
	}
}

func identity(typ libauth.AccountType, mustChange bool, roles ...string) *libauth.Identity {
	return &libauth.Identity{
		Principal: &libauth.Principal{
			ID:                 "u-" + string(typ),
			Email:              "user@library.edu",
			Type:               typ,
			Status:             libauth.StatusActive,
			Roles:              roles,
			MustChangePassword: mustChange,
		},
		Authorities: roles,
	}
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(id.Principal.ID))
	})
}

func serve(h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestPipelineAnonymousPassesThrough(t *testing.T) {
	h := Pipeline(fakeAuthenticator{})(echoIdentity())

	for _, auth := range []string{"", "Basic dXNlcjpwYXNz", "bearer lowercase-scheme"} {
		rec := serve(h, http.MethodGet, "/books", auth)
		if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
			t.Fatalf("auth %q: expected anonymous pass-through, got %d %q", auth, rec.Code, rec.Body.String())
		}
	}
}

func TestPipelineAttachesIdentity(t *testing.T) {
	h := Pipeline(fakeAuthenticator{"good": identity(libauth.AccountStudent, false, "ROLE_STUDENT")})(echoIdentity())

	rec := serve(h, http.MethodGet, "/books", "Bearer good")
	if rec.Code != http.StatusOK || rec.Body.String() != "u-STUDENT" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestPipelineRejectsBadTokens(t *testing.T) {
	authn := fakeAuthenticator{
		"expired": fmt.Errorf("%w: %w", libauth.ErrTokenInvalid, jwt.ErrTokenExpired),
		"revoked": fmt.Errorf("%w: %w", libauth.ErrTokenInvalid, jwt.ErrTokenRevoked),
		"gone":    libauth.ErrUnauthenticated,
	}
	loc := time.FixedZone("ICT", 7*3600)
	h := Pipeline(authn, WithLocation(loc), WithClock(func() time.Time { return testNow }))(echoIdentity())

	for _, token := range []string{"expired", "revoked", "gone", "tampered", ""} {
		rec := serve(h, http.MethodGet, "/books", "Bearer "+token)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("token %q: expected 403, got %d", token, rec.Code)
		}
		body := decodeBody(t, rec)
		want := ErrorBody{Timestamp: "14-03-2025 17:05:09", Status: 403, Error: "Forbidden", Message: "Access denied"}
		if body != want {
			t.Fatalf("token %q: unexpected body %+v", token, body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
	}
}

func TestPipelineStoreUnavailable(t *testing.T) {
	authn := fakeAuthenticator{"tok": fmt.Errorf("%w: connection refused", libauth.ErrStoreUnavailable)}
	rec := serve(Pipeline(authn)(echoIdentity()), http.MethodGet, "/books", "Bearer tok")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body.Error != "Service Unavailable" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestPipelineMustChangeGate(t *testing.T) {
	authn := fakeAuthenticator{
		"pending": identity(libauth.AccountLecturer, true, "ROLE_LECTURER"),
		"admin":   identity(libauth.AccountAdmin, true, "ROLE_ADMIN"),
	}
	h := Pipeline(authn)(echoIdentity())

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		want   int
	}{
		{"change password", "pending", http.MethodPost, "/users/change-password", http.StatusOK},
		{"change password mixed case", "pending", http.MethodPost, "/Users/Change-Password", http.StatusOK},
		{"change password wrong method", "pending", http.MethodGet, "/users/change-password", http.StatusForbidden},
		{"auth prefix", "pending", http.MethodPost, "/auth/sign-in", http.StatusOK},
		{"other route", "pending", http.MethodGet, "/users/me", http.StatusForbidden},
		{"admin exempt", "admin", http.MethodGet, "/users/me", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.method, tc.path, "Bearer "+tc.token)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
			if rec.Code == http.StatusForbidden {
				if body := decodeBody(t, rec); body.Message != "must change password before using the system" {
					t.Fatalf("unexpected message %q", body.Message)
				}
			}
		})
	}
}

func TestPipelineCustomExemptions(t *testing.T) {
	authn := fakeAuthenticator{"pending": identity(libauth.AccountStudent, true)}
	h := Pipeline(authn, WithChangePasswordPath("/api/password"), WithAuthPrefix("/api/auth/"))(echoIdentity())

	if rec := serve(h, http.MethodPost, "/api/password", "Bearer pending"); rec.Code != http.StatusOK {
		t.Fatalf("custom change path: got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/api/auth/session", "Bearer pending"); rec.Code != http.StatusOK {
		t.Fatalf("custom auth prefix: got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/users/change-password", "Bearer pending"); rec.Code != http.StatusForbidden {
		t.Fatalf("default path must no longer be exempt, got %d", rec.Code)
	}
}

func TestPipelineDoesNotLeakIdentityAcrossRequests(t *testing.T) {
	authn := fakeAuthenticator{"good": identity(libauth.AccountStudent, false)}
	h := Pipeline(authn)(echoIdentity())

	if rec := serve(h, http.MethodGet, "/books", "Bearer good"); rec.Body.String() != "u-STUDENT" {
		t.Fatalf("unexpected first response %q", rec.Body.String())
	}
	if rec := serve(h, http.MethodGet, "/books", ""); rec.Body.String() != "anonymous" {
		t.Fatalf("identity leaked into the next request: %q", rec.Body.String())
	}
}

func TestPipelinePanicDoesNotRetainIdentity(t *testing.T) {
	authn := fakeAuthenticator{"good": identity(libauth.AccountStudent, false)}
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("handler failure") })
	h := Pipeline(authn)(panicking)

	func() {
		defer func() { _ = recover() }()
		serve(h, http.MethodGet, "/books", "Bearer good")
	}()

	rec := serve(Pipeline(authn)(echoIdentity()), http.MethodGet, "/books", "")
	if rec.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous after panic, got %q", rec.Body.String())
	}
}

func TestGuards(t *testing.T) {
	authn := fakeAuthenticator{
		"student":  identity(libauth.AccountStudent, false, "ROLE_STUDENT"),
		"subadmin": identity(libauth.AccountSubAdmin, false, "ROLE_SUB_ADMIN"),
	}
	guards := NewGuards(WithClock(func() time.Time { return testNow }))

	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		auth  string
		want  int
	}{
		{"authenticated anonymous", guards.RequireAuthenticated(), "", http.StatusUnauthorized},
		{"authenticated ok", guards.RequireAuthenticated(), "Bearer student", http.StatusOK},
		{"roles anonymous", guards.RequireRoles("ROLE_ADMIN"), "", http.StatusUnauthorized},
		{"roles denied", guards.RequireRoles("ROLE_ADMIN", "ROLE_SUB_ADMIN"), "Bearer student", http.StatusForbidden},
		{"roles allowed", guards.RequireRoles("ROLE_ADMIN", "ROLE_SUB_ADMIN"), "Bearer subadmin", http.StatusOK},
		{"types denied", guards.RequireAccountTypes(libauth.AccountAdmin), "Bearer subadmin", http.StatusForbidden},
		{"types allowed", guards.RequireAccountTypes(libauth.AccountAdmin, libauth.AccountStudent), "Bearer student", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Pipeline(authn)(tc.guard(echoIdentity()))
			rec := serve(h, http.MethodGet, "/users/me", tc.auth)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if rec.Code == http.StatusUnauthorized {
				body := decodeBody(t, rec)
				if body.Error != "Unauthorized" || body.Message != "Unauthenticated" || body.Timestamp != "14-03-2025 10:05:09" {
					t.Fatalf("unexpected body %+v", body)
				}
			}
		})
	}
}

func TestPipelineWithEngine(t *testing.T) {
	store := stores.NewMemory(time.UTC)
	cfg := libauth.DefaultConfig()
	cfg.JWT.AccessKey = []byte("library-access-key-library-access-key")
	cfg.JWT.ResetKey = []byte("library-reset-key-library-reset-key-01")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	cfg.Audit.Enabled = false

	engine, err := libauth.New().WithConfig(cfg).WithCredentialStore(store).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	hash, err := engine.HashPassword("correct-horse-42")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := store.Create(context.Background(), &libauth.Principal{
		ID:                 "u1",
		Email:              "lecturer@library.edu",
		PasswordHash:       hash,
		Roles:              []string{"ROLE_LECTURER"},
		Type:               libauth.AccountLecturer,
		Status:             libauth.StatusActive,
		MustChangePassword: true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := engine.SignIn(context.Background(), "lecturer@library.edu", "correct-horse-42")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !res.MustChangePassword {
		t.Fatal("sign-in result must report the pending change")
	}

	h := Pipeline(engine)(echoIdentity())
	auth := "Bearer " + res.AccessToken

	if rec := serve(h, http.MethodGet, "/users/me", auth); rec.Code != http.StatusForbidden {
		t.Fatalf("expected gate to block, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/users/change-password", auth); rec.Code != http.StatusOK {
		t.Fatalf("expected change-password to pass, got %d", rec.Code)
	}

	if err := engine.ChangePassword(context.Background(), "u1", "correct-horse-42", "fresh-library-pass-7"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if rec := serve(h, http.MethodGet, "/users/me", auth); rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("expected pass after change, got %d %q", rec.Code, rec.Body.String())
	}

	tampered := auth + "x"
	if rec := serve(h, http.MethodGet, "/users/me", tampered); rec.Code != http.StatusForbidden {
		t.Fatalf("tampered token: expected 403, got %d", rec.Code)
	}
}
