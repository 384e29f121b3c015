package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/stores"
	otelexport "github.com/MrEthical07/libauth/metrics/export/otel"
)

const benchPassword = "correct-horse-battery"

type options struct {
	accounts    int
	attempts    int
	concurrency int
	redisAddr   string
	rateLimit   bool
	timezone    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "libauth-lockout-bench: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("libauth-lockout-bench", pflag.ContinueOnError)
	flagSet.IntVar(&opts.accounts, "accounts", 50, "number of accounts to seed")
	flagSet.IntVar(&opts.attempts, "attempts", 40, "wrong-password attempts per account")
	flagSet.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or an embedded miniredis is used")
	flagSet.BoolVar(&opts.rateLimit, "rate-limit", false, "enable sign-in throttling during the run")
	flagSet.StringVar(&opts.timezone, "timezone", "Asia/Ho_Chi_Minh", "zone that defines the lockout day")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.accounts <= 0 || opts.attempts <= 0 || opts.concurrency <= 0 {
		return errors.New("accounts, attempts, and concurrency must be > 0")
	}

	ctx := context.Background()
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	client, cleanup, err := openRedis(opts.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	store := stores.NewMemory(loc)
	engine, err := buildEngine(opts, loc, store, client)
	if err != nil {
		return err
	}
	defer engine.Close()

	exporter, err := otelexport.NewExporter(provider.Meter("libauth-lockout-bench"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	emails, err := seed(ctx, engine, store, opts.accounts)
	if err != nil {
		return err
	}

	stats := storm(ctx, engine, emails, opts.attempts, opts.concurrency)

	locked, maxAttempts := 0, 0
	for _, email := range emails {
		p, err := store.FindByLogin(ctx, email)
		if err != nil {
			return err
		}
		if p.Status == libauth.StatusLocked {
			locked++
		}
		if p.FailedLoginAttempts > maxAttempts {
			maxAttempts = p.FailedLoginAttempts
		}
	}

	fmt.Println("---- results ----")
	printStats("sign-in", stats)
	for _, o := range stats.outcomes() {
		fmt.Printf("  %-22s %d\n", o.name, o.count)
	}
	fmt.Printf("accounts locked: %d/%d (max recorded attempts %d)\n", locked, len(emails), maxAttempts)

	counters, err := collectCounters(ctx, reader)
	if err != nil {
		return err
	}
	fmt.Println("---- engine counters ----")
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if counters[name] != 0 {
			fmt.Printf("  %s %d\n", name, counters[name])
		}
	}
	return nil
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(opts options, loc *time.Location, store libauth.CredentialStore, client redis.UniversalClient) (*libauth.Engine, error) {
	cfg := libauth.DefaultConfig()
	cfg.Location = loc
	cfg.JWT.AccessKey = randomKey()
	cfg.JWT.ResetKey = randomKey()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Lockout.MaxRecordRetries = 16
	cfg.RateLimit.Enabled = opts.rateLimit
	cfg.Audit.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return libauth.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithRedis(client).
		Build()
}

func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return key
}

func seed(ctx context.Context, engine *libauth.Engine, store *stores.Memory, n int) ([]string, error) {
	hash, err := engine.HashPassword(benchPassword)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	emails := make([]string, n)
	for i := 0; i < n; i++ {
		emails[i] = fmt.Sprintf("student-%04d@library.edu", i)
		if _, err := store.Create(ctx, &libauth.Principal{
			Email:        emails[i],
			FullName:     fmt.Sprintf("Student %d", i),
			PasswordHash: hash,
			Type:         libauth.AccountStudent,
			Status:       libauth.StatusActive,
		}); err != nil {
			return nil, fmt.Errorf("seed %s: %w", emails[i], err)
		}
	}
	fmt.Printf("seeded %d accounts in %s\n", n, time.Since(start).Round(time.Millisecond))
	return emails, nil
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64

	invalid   int64
	locked    int64
	throttled int64
	other     int64
}

type outcome struct {
	name  string
	count int64
}

func (s phaseStats) outcomes() []outcome {
	return []outcome{
		{"invalid_credentials", s.invalid},
		{"account_locked", s.locked},
		{"rate_limited", s.throttled},
		{"other", s.other},
	}
}

// storm fires attempts wrong-password sign-ins at every account from
// concurrency workers, interleaving accounts so each sees concurrent failures.
func storm(ctx context.Context, engine *libauth.Engine, emails []string, attempts, concurrency int) phaseStats {
	total := len(emails) * attempts
	var (
		wg        sync.WaitGroup
		cursor    int64
		invalid   int64
		locked    int64
		throttled int64
		other     int64
		latencies = make([]time.Duration, 0, total)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= total {
					return
				}
				email := emails[i%len(emails)]
				t0 := time.Now()
				_, err := engine.SignIn(ctx, email, "wrong-password")
				d := time.Since(t0)
				switch {
				case errors.Is(err, libauth.ErrInvalidCredentials):
					atomic.AddInt64(&invalid, 1)
				case errors.Is(err, libauth.ErrAccountLocked):
					atomic.AddInt64(&locked, 1)
				case errors.Is(err, libauth.ErrRateLimited):
					atomic.AddInt64(&throttled, 1)
				default:
					atomic.AddInt64(&other, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s := computeStats(time.Since(start), latencies)
	s.invalid, s.locked, s.throttled, s.other = invalid, locked, throttled, other
	return s
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func collectCounters(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out, nil
}
