// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the APP_ENV value that enables secure cookies and strict secret checks.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the host:port of the Redis instance holding refresh sessions.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// ClientURL is the frontend origin used for CORS-free links in mail (confirm email, reset password).
	ClientURL string `mapstructure:"CLIENT_URL"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PasswordHistorySize is how many previous password hashes are kept and checked for reuse.
	PasswordHistorySize int `mapstructure:"PASSWORD_HISTORY_SIZE"`
	// EncryptionKey keys the AES-GCM token encryptor. 64 hex chars are used as-is; anything else is hashed to 32 bytes.
	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`
	// CookieSecret signs the refresh and sudo cookies.
	CookieSecret string `mapstructure:"COOKIE_SECRET"`
	// JWTIssuer is the iss claim on every signed token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	AccessTokenSecret string `mapstructure:"ACCESS_TOKEN_SECRET"`
	AccessTokenTTL    string `mapstructure:"ACCESS_TOKEN_TTL"`

	RefreshTokenSecret string `mapstructure:"REFRESH_TOKEN_SECRET"`
	RefreshTokenTTL    string `mapstructure:"REFRESH_TOKEN_TTL"`

	EmailVerificationSecret string `mapstructure:"EMAIL_VERIFICATION_SECRET"`
	EmailVerificationTTL    string `mapstructure:"EMAIL_VERIFICATION_TTL"`

	TwoFactorVerificationSecret string `mapstructure:"TWOFACTOR_VERIFICATION_SECRET"`
	TwoFactorVerificationTTL    string `mapstructure:"TWOFACTOR_VERIFICATION_TTL"`

	ForgotPasswordSecret string `mapstructure:"FORGOT_PASSWORD_SECRET"`
	ForgotPasswordTTL    string `mapstructure:"FORGOT_PASSWORD_TTL"`

	SudoAccessTokenSecret string `mapstructure:"SUDO_ACCESS_TOKEN_SECRET"`
	SudoAccessTokenTTL    string `mapstructure:"SUDO_ACCESS_TOKEN_TTL"`

	// OTPReturnToClient when true records issued codes in memory for GET /dev/otp. Must not be true in production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// DeviceTrustPolicyFile optionally replaces the built-in Rego step-up policy.
	DeviceTrustPolicyFile string `mapstructure:"DEVICE_TRUST_POLICY_FILE"`

	// Notifications. When Kafka brokers are set, mail requests are produced to Kafka; otherwise they are only logged.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the Kafka topic for notification messages.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`

	// Worker-only: consumer group and mail relay settings.
	KafkaGroupID    string `mapstructure:"KAFKA_GROUP_ID"`
	MailRelayURL    string `mapstructure:"MAIL_RELAY_URL"`
	MailRelayAPIKey string `mapstructure:"MAIL_RELAY_API_KEY"`
	MailFrom        string `mapstructure:"MAIL_FROM"`
	// LokiURL, when set, makes the worker push a delivery log line per message.
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PASSWORD_HISTORY_SIZE", 5)
	v.SetDefault("ENCRYPTION_KEY", "")
	v.SetDefault("COOKIE_SECRET", "")
	v.SetDefault("JWT_ISSUER", "consultancy-auth")
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h") // 7d
	v.SetDefault("EMAIL_VERIFICATION_SECRET", "")
	v.SetDefault("EMAIL_VERIFICATION_TTL", "30m")
	v.SetDefault("TWOFACTOR_VERIFICATION_SECRET", "")
	v.SetDefault("TWOFACTOR_VERIFICATION_TTL", "5m")
	v.SetDefault("FORGOT_PASSWORD_SECRET", "")
	v.SetDefault("FORGOT_PASSWORD_TTL", "15m")
	v.SetDefault("SUDO_ACCESS_TOKEN_SECRET", "")
	v.SetDefault("SUDO_ACCESS_TOKEN_TTL", "10m")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("DEVICE_TRUST_POLICY_FILE", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "auth-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "auth-mail-worker")
	v.SetDefault("MAIL_RELAY_URL", "")
	v.SetDefault("MAIL_RELAY_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.PasswordHistorySize < 1 {
		return nil, errors.New("config: PASSWORD_HISTORY_SIZE must be at least 1")
	}

	if err := cfg.checkSecrets(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// secrets returns pointers to every signing/encryption secret keyed by env name.
func (c *Config) secrets() []struct {
	name string
	val  *string
} {
	return []struct {
		name string
		val  *string
	}{
		{"ENCRYPTION_KEY", &c.EncryptionKey},
		{"COOKIE_SECRET", &c.CookieSecret},
		{"ACCESS_TOKEN_SECRET", &c.AccessTokenSecret},
		{"REFRESH_TOKEN_SECRET", &c.RefreshTokenSecret},
		{"EMAIL_VERIFICATION_SECRET", &c.EmailVerificationSecret},
		{"TWOFACTOR_VERIFICATION_SECRET", &c.TwoFactorVerificationSecret},
		{"FORGOT_PASSWORD_SECRET", &c.ForgotPasswordSecret},
		{"SUDO_ACCESS_TOKEN_SECRET", &c.SudoAccessTokenSecret},
	}
}

// checkSecrets requires every secret in production and fills development placeholders otherwise.
// Secrets must be pairwise distinct so a token for one purpose never verifies for another.
func (c *Config) checkSecrets() error {
	seen := make(map[string]string)
	for _, s := range c.secrets() {
		if *s.val == "" {
			if c.IsProduction() {
				return fmt.Errorf("config: %s must be set when APP_ENV=production", s.name)
			}
			*s.val = "dev-" + strings.ToLower(s.name)
		}
		if other, ok := seen[*s.val]; ok {
			return fmt.Errorf("config: %s must differ from %s", s.name, other)
		}
		seen[*s.val] = s.name
	}
	return nil
}

func parseTTL(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses AccessTokenTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return parseTTL(c.AccessTokenTTL, 15*time.Minute) }

// RefreshTTL parses RefreshTokenTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return parseTTL(c.RefreshTokenTTL, 168*time.Hour) }

// EmailVerificationExpiry parses EmailVerificationTTL. Returns 30m if unset or invalid.
func (c *Config) EmailVerificationExpiry() time.Duration {
	return parseTTL(c.EmailVerificationTTL, 30*time.Minute)
}

// TwoFactorExpiry parses TwoFactorVerificationTTL. Returns 5m if unset or invalid.
func (c *Config) TwoFactorExpiry() time.Duration {
	return parseTTL(c.TwoFactorVerificationTTL, 5*time.Minute)
}

// ForgotPasswordExpiry parses ForgotPasswordTTL. Returns 15m if unset or invalid.
func (c *Config) ForgotPasswordExpiry() time.Duration {
	return parseTTL(c.ForgotPasswordTTL, 15*time.Minute)
}

// SudoTTL parses SudoAccessTokenTTL. Returns 10m if unset or invalid.
func (c *Config) SudoTTL() time.Duration { return parseTTL(c.SudoAccessTokenTTL, 10*time.Minute) }

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka notifier.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
