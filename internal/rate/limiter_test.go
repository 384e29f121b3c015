package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, cfg)
}

func TestSignInWindowExhausts(t *testing.T) {
	_, l := newTestLimiter(t, Config{Window: time.Minute, SignInMax: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.AllowSignIn(ctx, "a@library.edu", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.AllowSignIn(ctx, "a@library.edu", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.AllowSignIn(ctx, "b@library.edu", ""); err != nil {
		t.Fatalf("other email must have its own window: %v", err)
	}
}

func TestSignInWindowExpires(t *testing.T) {
	mr, l := newTestLimiter(t, Config{Window: time.Minute, SignInMax: 1})
	ctx := context.Background()

	_ = l.AllowSignIn(ctx, "a@library.edu", "")
	if err := l.AllowSignIn(ctx, "a@library.edu", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.AllowSignIn(ctx, "a@library.edu", ""); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
}

func TestResetSignInClearsEmailWindow(t *testing.T) {
	_, l := newTestLimiter(t, Config{Window: time.Minute, SignInMax: 5})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = l.AllowSignIn(ctx, "A@Library.edu", "")
	}
	if n, err := l.Attempts(ctx, "a@library.edu"); err != nil || n != 4 {
		t.Fatalf("expected 4 attempts, got %d (%v)", n, err)
	}
	if err := l.ResetSignIn(ctx, "a@library.edu"); err != nil {
		t.Fatalf("ResetSignIn failed: %v", err)
	}
	if n, _ := l.Attempts(ctx, "a@library.edu"); n != 0 {
		t.Fatalf("expected cleared counter, got %d", n)
	}
}

func TestIPWindowAllowsSeveralAccounts(t *testing.T) {
	_, l := newTestLimiter(t, Config{Window: time.Minute, ForgotPasswordMax: 1, EnableIPThrottle: true})
	ctx := context.Background()

	for i := 0; i < ipMultiplier; i++ {
		email := string(rune('a'+i)) + "@library.edu"
		if err := l.AllowForgotPassword(ctx, email, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
	if err := l.AllowForgotPassword(ctx, "z@library.edu", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP window to be exhausted, got %v", err)
	}
}

func TestRedisFailureIsReported(t *testing.T) {
	mr, l := newTestLimiter(t, Config{Window: time.Minute, SignInMax: 1})
	mr.Close()

	if err := l.AllowSignIn(context.Background(), "a@library.edu", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
