// Package config loads libauth-server settings from environment variables,
// an optional YAML file and .env files, and maps them onto libauth.Config.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MrEthical07/libauth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: jwt.access_key is read
// from LIBAUTH_JWT_ACCESS_KEY.
const EnvPrefix = "LIBAUTH"

type AppConfig struct {
	App           AppSettings           `mapstructure:"app" yaml:"app"`
	HTTP          HTTPSettings          `mapstructure:"http" yaml:"http"`
	JWT           JWTSettings           `mapstructure:"jwt" yaml:"jwt"`
	Lockout       LockoutSettings       `mapstructure:"lockout" yaml:"lockout"`
	PasswordReset PasswordResetSettings `mapstructure:"password_reset" yaml:"password_reset"`
	Password      PasswordSettings      `mapstructure:"password" yaml:"password"`
	RateLimit     RateLimitSettings     `mapstructure:"rate_limit" yaml:"rate_limit"`
	Postgres      PostgresSettings      `mapstructure:"postgres" yaml:"postgres"`
	Redis         RedisSettings         `mapstructure:"redis" yaml:"redis"`
	Kafka         KafkaSettings         `mapstructure:"kafka" yaml:"kafka"`
	Notify        NotifySettings        `mapstructure:"notify" yaml:"notify"`
	Audit         AuditSettings         `mapstructure:"audit" yaml:"audit"`
	Metrics       MetricsSettings       `mapstructure:"metrics" yaml:"metrics"`
}

type AppSettings struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Env      string `mapstructure:"env" yaml:"env"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

type HTTPSettings struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	// TrustedProxies lists the IPs and CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

// JWTSettings carries the HMAC keys base64-encoded.
type JWTSettings struct {
	AccessKey          string             `mapstructure:"access_key" yaml:"access_key"`
	ResetKey           string             `mapstructure:"reset_key" yaml:"reset_key"`
	ExpiryMinutes      int                `mapstructure:"expiry_minutes" yaml:"expiry_minutes"`
	ResetExpiryMinutes int                `mapstructure:"reset_expiry_minutes" yaml:"reset_expiry_minutes"`
	Revocation         RevocationSettings `mapstructure:"revocation" yaml:"revocation"`
}

type RevocationSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
}

type LockoutSettings struct {
	Threshold            int  `mapstructure:"threshold" yaml:"threshold"`
	AllowCustomThreshold bool `mapstructure:"allow_custom_threshold" yaml:"allow_custom_threshold"`
	MaxRecordRetries     int  `mapstructure:"max_record_retries" yaml:"max_record_retries"`
}

type PasswordResetSettings struct {
	ExpiryMinutes int    `mapstructure:"expiry_minutes" yaml:"expiry_minutes"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
}

type PasswordSettings struct {
	MinLength      int            `mapstructure:"min_length" yaml:"min_length"`
	MaxLength      int            `mapstructure:"max_length" yaml:"max_length"`
	MinStrength    int            `mapstructure:"min_strength" yaml:"min_strength"`
	UpgradeOnLogin bool           `mapstructure:"upgrade_on_login" yaml:"upgrade_on_login"`
	Argon2         Argon2Settings `mapstructure:"argon2" yaml:"argon2"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory" yaml:"memory"`
	Iterations  uint32 `mapstructure:"iterations" yaml:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism" yaml:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length" yaml:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length" yaml:"key_length"`
}

type RateLimitSettings struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Window            time.Duration `mapstructure:"window" yaml:"window"`
	SignInMax         int           `mapstructure:"sign_in_max" yaml:"sign_in_max"`
	ForgotPasswordMax int           `mapstructure:"forgot_password_max" yaml:"forgot_password_max"`
	Prefix            string        `mapstructure:"prefix" yaml:"prefix"`
}

// PostgresSettings selects the credential store. An empty DSN selects the
// in-memory store.
type PostgresSettings struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// RedisSettings configures throttling and revocation lookups. An empty Addr
// disables both.
type RedisSettings struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// KafkaSettings configures the reset message producer. No brokers selects
// the log notifier.
type KafkaSettings struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

type NotifySettings struct {
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

type AuditSettings struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" yaml:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full" yaml:"drop_if_full"`
}

// MetricsSettings configures exposition. An empty Addr serves /metrics on the
// API listener.
type MetricsSettings struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr              string `mapstructure:"addr" yaml:"addr"`
	LatencyHistograms bool   `mapstructure:"latency_histograms" yaml:"latency_histograms"`
}

// LoadOptions selects the optional sources read by Load.
type LoadOptions struct {
	// ConfigFile is a YAML file read before environment overrides.
	ConfigFile string
	// EnvFiles are loaded with godotenv before anything else. When empty, a
	// .env file in the working directory is loaded if present.
	EnvFiles []string
}

var keys = []string{
	"app.name",
	"app.env",
	"app.timezone",
	"app.log_level",
	"http.addr",
	"http.shutdown_timeout",
	"http.read_header_timeout",
	"http.trusted_proxies",
	"jwt.access_key",
	"jwt.reset_key",
	"jwt.expiry_minutes",
	"jwt.reset_expiry_minutes",
	"jwt.revocation.enabled",
	"jwt.revocation.prefix",
	"lockout.threshold",
	"lockout.allow_custom_threshold",
	"lockout.max_record_retries",
	"password_reset.expiry_minutes",
	"password_reset.base_url",
	"password.min_length",
	"password.max_length",
	"password.min_strength",
	"password.upgrade_on_login",
	"password.argon2.memory",
	"password.argon2.iterations",
	"password.argon2.parallelism",
	"password.argon2.salt_length",
	"password.argon2.key_length",
	"rate_limit.enabled",
	"rate_limit.window",
	"rate_limit.sign_in_max",
	"rate_limit.forgot_password_max",
	"rate_limit.prefix",
	"postgres.dsn",
	"postgres.max_conns",
	"redis.addr",
	"redis.password",
	"redis.db",
	"kafka.brokers",
	"kafka.topic",
	"notify.queue_size",
	"notify.workers",
	"notify.send_timeout",
	"audit.enabled",
	"audit.buffer_size",
	"audit.drop_if_full",
	"metrics.enabled",
	"metrics.addr",
	"metrics.latency_histograms",
}

// Load reads .env files, the optional YAML file and LIBAUTH_* environment
// variables, in increasing order of precedence.
func Load(opts LoadOptions) (*AppConfig, error) {
	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := bindEnvs(v, keys); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.TrustedProxies = splitList(cfg.HTTP.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := libauth.DefaultConfig()

	v.SetDefault("app.name", "libauth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("app.log_level", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.trusted_proxies", []string{})

	v.SetDefault("jwt.access_key", "")
	v.SetDefault("jwt.reset_key", "")
	v.SetDefault("jwt.expiry_minutes", int(def.JWT.AccessTTL/time.Minute))
	v.SetDefault("jwt.reset_expiry_minutes", int(def.JWT.ResetTTL/time.Minute))
	v.SetDefault("jwt.revocation.enabled", false)
	v.SetDefault("jwt.revocation.prefix", "libauth:jti")

	v.SetDefault("lockout.threshold", def.Lockout.Threshold)
	v.SetDefault("lockout.allow_custom_threshold", false)
	v.SetDefault("lockout.max_record_retries", def.Lockout.MaxRecordRetries)

	v.SetDefault("password_reset.expiry_minutes", int(def.PasswordReset.TTL/time.Minute))
	v.SetDefault("password_reset.base_url", def.PasswordReset.BaseURL)

	v.SetDefault("password.min_length", def.Password.MinLength)
	v.SetDefault("password.max_length", def.Password.MaxLength)
	v.SetDefault("password.min_strength", def.Password.MinStrength)
	v.SetDefault("password.upgrade_on_login", def.Password.UpgradeOnLogin)
	v.SetDefault("password.argon2.memory", def.Password.Memory)
	v.SetDefault("password.argon2.iterations", def.Password.Time)
	v.SetDefault("password.argon2.parallelism", def.Password.Parallelism)
	v.SetDefault("password.argon2.salt_length", def.Password.SaltLength)
	v.SetDefault("password.argon2.key_length", def.Password.KeyLength)

	v.SetDefault("rate_limit.enabled", def.RateLimit.Enabled)
	v.SetDefault("rate_limit.window", def.RateLimit.Window.String())
	v.SetDefault("rate_limit.sign_in_max", def.RateLimit.SignInMax)
	v.SetDefault("rate_limit.forgot_password_max", def.RateLimit.ForgotPasswordMax)
	v.SetDefault("rate_limit.prefix", def.RateLimit.RedisPrefix)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "library.mail.password-reset")

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 1)
	v.SetDefault("notify.send_timeout", "10s")

	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", def.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.latency_histograms", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, EnvPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings that are not covered by libauth.Config.Validate.
func (c *AppConfig) Validate() error {
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("%w: app.timezone: %v", libauth.ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("%w: http.addr must not be empty", libauth.ErrInvalidConfig)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: http.shutdown_timeout must be > 0", libauth.ErrInvalidConfig)
	}
	if c.Postgres.DSN != "" && c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("%w: postgres.max_conns must be > 0", libauth.ErrInvalidConfig)
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("%w: notify.queue_size must be > 0", libauth.ErrInvalidConfig)
	}
	if c.JWT.Revocation.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: jwt.revocation.enabled requires redis.addr", libauth.ErrInvalidConfig)
	}
	_, err := c.EngineConfig()
	return err
}

// Location returns the configured time zone.
func (c *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

// EngineConfig maps the settings onto libauth.Config and validates it.
func (c *AppConfig) EngineConfig() (libauth.Config, error) {
	out := libauth.DefaultConfig()

	accessKey, err := decodeKey(c.JWT.AccessKey)
	if err != nil {
		return out, fmt.Errorf("%w: jwt.access_key: %v", libauth.ErrInvalidConfig, err)
	}
	resetKey, err := decodeKey(c.JWT.ResetKey)
	if err != nil {
		return out, fmt.Errorf("%w: jwt.reset_key: %v", libauth.ErrInvalidConfig, err)
	}
	loc, err := c.Location()
	if err != nil {
		return out, fmt.Errorf("%w: app.timezone: %v", libauth.ErrInvalidConfig, err)
	}

	out.JWT = libauth.JWTConfig{
		AccessKey: accessKey,
		AccessTTL: time.Duration(c.JWT.ExpiryMinutes) * time.Minute,
		ResetKey:  resetKey,
		ResetTTL:  time.Duration(c.JWT.ResetExpiryMinutes) * time.Minute,
	}
	out.Lockout = libauth.LockoutConfig{
		Threshold:            c.Lockout.Threshold,
		AllowCustomThreshold: c.Lockout.AllowCustomThreshold,
		MaxRecordRetries:     c.Lockout.MaxRecordRetries,
	}
	out.Password = libauth.PasswordConfig{
		Memory:         c.Password.Argon2.Memory,
		Time:           c.Password.Argon2.Iterations,
		Parallelism:    c.Password.Argon2.Parallelism,
		SaltLength:     c.Password.Argon2.SaltLength,
		KeyLength:      c.Password.Argon2.KeyLength,
		UpgradeOnLogin: c.Password.UpgradeOnLogin,
		MinLength:      c.Password.MinLength,
		MaxLength:      c.Password.MaxLength,
		MinStrength:    c.Password.MinStrength,
	}
	out.PasswordReset = libauth.PasswordResetConfig{
		TTL:     time.Duration(c.PasswordReset.ExpiryMinutes) * time.Minute,
		BaseURL: c.PasswordReset.BaseURL,
	}
	out.RateLimit = libauth.RateLimitConfig{
		Enabled:           c.RateLimit.Enabled,
		Window:            c.RateLimit.Window,
		SignInMax:         c.RateLimit.SignInMax,
		ForgotPasswordMax: c.RateLimit.ForgotPasswordMax,
		RedisPrefix:       c.RateLimit.Prefix,
	}
	out.Audit = libauth.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	out.Metrics = libauth.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}
	out.Location = loc

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("not valid base64")
}
