package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PAYRECON"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Security   SecurityConfig   `mapstructure:"security"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address        string        `mapstructure:"address" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database" validate:"required"`
	SSLMode         string        `mapstructure:"ssl_mode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	userinfo := c.User
	if c.Password != "" {
		userinfo += ":" + c.Password
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", userinfo, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// HTTPClientConfig holds outbound HTTP client configuration for provider calls.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	Issuer    string `mapstructure:"issuer"`
}

// SecurityConfig holds webhook and storage security policy.
type SecurityConfig struct {
	// AtRestSecret derives the key for encrypted audit snapshots.
	AtRestSecret    string        `mapstructure:"at_rest_secret"`
	ReceiptTTL      time.Duration `mapstructure:"receipt_ttl" validate:"gt=0"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" validate:"gt=0"`
}

// PaymentConfig holds payment creation policy.
type PaymentConfig struct {
	MaxAttemptsPerWindow   int64 `mapstructure:"max_attempts_per_window" validate:"gt=0"`
	SecondaryAuthThreshold int64 `mapstructure:"secondary_auth_threshold" validate:"min=0"`
}

// RecoveryConfig holds recovery sweep configuration.
type RecoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	GracePeriod     time.Duration `mapstructure:"grace_period" validate:"gte=0"`
	Retention       time.Duration `mapstructure:"retention" validate:"gtfield=GracePeriod"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" validate:"gt=0"`
	BatchSize       int           `mapstructure:"batch_size" validate:"gt=0"`
	LockTTL         time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// CleanupConfig holds abandonment sweep configuration.
type CleanupConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	AbandonAfter time.Duration `mapstructure:"abandon_after" validate:"gt=0"`
	ReasonCode   string        `mapstructure:"reason_code" validate:"required"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0"`
	LockTTL      time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// ProvidersConfig holds per-provider credentials. A provider is registered
// only when its section is enabled.
type ProvidersConfig struct {
	CardRedirect    CardRedirectConfig    `mapstructure:"card_redirect"`
	ChainSettlement ChainSettlementConfig `mapstructure:"chain_settlement"`
	Stripe          StripeConfig          `mapstructure:"stripe"`
	Alipay          AlipayConfig          `mapstructure:"alipay"`
	Breaker         BreakerConfig         `mapstructure:"breaker"`
}

// CardRedirectConfig configures the hosted card checkout provider.
type CardRedirectConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CheckoutURL   string `mapstructure:"checkout_url" validate:"required_if=Enabled true"`
	APIURL        string `mapstructure:"api_url" validate:"required_if=Enabled true"`
	MerchantID    string `mapstructure:"merchant_id" validate:"required_if=Enabled true"`
	PrivateKey    string `mapstructure:"private_key" validate:"required_if=Enabled true"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required_if=Enabled true"`
}

// ChainSettlementConfig configures the on-chain settlement provider.
type ChainSettlementConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	APIURL                string `mapstructure:"api_url" validate:"required_if=Enabled true"`
	DepositAddress        string `mapstructure:"deposit_address" validate:"required_if=Enabled true"`
	PrivateKey            string `mapstructure:"private_key" validate:"required_if=Enabled true"`
	WebhookSecret         string `mapstructure:"webhook_secret" validate:"required_if=Enabled true"`
	RequiredConfirmations int    `mapstructure:"required_confirmations" validate:"min=0"`
}

// StripeConfig configures Stripe.
type StripeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SecretKey     string `mapstructure:"secret_key" validate:"required_if=Enabled true"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required_if=Enabled true"`
}

// AlipayConfig configures Alipay.
type AlipayConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AppID           string `mapstructure:"app_id" validate:"required_if=Enabled true"`
	PrivateKey      string `mapstructure:"private_key" validate:"required_if=Enabled true"`
	AlipayPublicKey string `mapstructure:"alipay_public_key" validate:"required_if=Enabled true"`
	IsProd          bool   `mapstructure:"is_prod"`
	NotifyURL       string `mapstructure:"notify_url"`
	ReturnURL       string `mapstructure:"return_url"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"gt=0"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// AuditConfig configures the encrypted snapshot archive.
type AuditConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `mapstructure:"prefix"`
}

// Load loads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/payrecon")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Read from environment variables: PAYRECON_DATABASE_HOST -> database.host
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecretOverrides reads sensitive values from short environment names.
func applySecretOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"PAYRECON_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"PAYRECON_DB_PASSWORD", &cfg.Database.Password},
		{"PAYRECON_REDIS_PASSWORD", &cfg.Redis.Password},
		{"PAYRECON_AT_REST_SECRET", &cfg.Security.AtRestSecret},
		{"PAYRECON_CARD_REDIRECT_PRIVATE_KEY", &cfg.Providers.CardRedirect.PrivateKey},
		{"PAYRECON_CARD_REDIRECT_WEBHOOK_SECRET", &cfg.Providers.CardRedirect.WebhookSecret},
		{"PAYRECON_CHAIN_PRIVATE_KEY", &cfg.Providers.ChainSettlement.PrivateKey},
		{"PAYRECON_CHAIN_WEBHOOK_SECRET", &cfg.Providers.ChainSettlement.WebhookSecret},
		{"PAYRECON_STRIPE_SECRET_KEY", &cfg.Providers.Stripe.SecretKey},
		{"PAYRECON_STRIPE_WEBHOOK_SECRET", &cfg.Providers.Stripe.WebhookSecret},
		{"PAYRECON_ALIPAY_PRIVATE_KEY", &cfg.Providers.Alipay.PrivateKey},
		{"PAYRECON_ALIPAY_PUBLIC_KEY", &cfg.Providers.Alipay.AlipayPublicKey},
		{"PAYRECON_AUDIT_SECRET_KEY", &cfg.Audit.SecretAccessKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate checks the configuration against its struct tags and the rules
// that span sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Audit.Enabled && len(c.Security.AtRestSecret) < 16 {
		return errors.New("invalid config: security.at_rest_secret must be at least 16 bytes when audit is enabled")
	}
	if c.Cleanup.Enabled && c.Recovery.Enabled && c.Cleanup.AbandonAfter <= c.Recovery.GracePeriod {
		return errors.New("invalid config: cleanup.abandon_after must exceed recovery.grace_period")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "payrecon")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth defaults
	v.SetDefault("auth.issuer", "payrecon")

	// Security defaults
	v.SetDefault("security.receipt_ttl", 72*time.Hour)
	v.SetDefault("security.rate_limit_window", time.Hour)

	// Payment defaults
	v.SetDefault("payment.max_attempts_per_window", 10)
	v.SetDefault("payment.secondary_auth_threshold", 0)

	// Recovery defaults
	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.interval", 5*time.Minute)
	v.SetDefault("recovery.grace_period", 5*time.Minute)
	v.SetDefault("recovery.retention", 72*time.Hour)
	v.SetDefault("recovery.provider_timeout", 10*time.Second)
	v.SetDefault("recovery.batch_size", 100)
	v.SetDefault("recovery.lock_ttl", 4*time.Minute)

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.interval", 5*time.Minute)
	v.SetDefault("cleanup.abandon_after", time.Hour)
	v.SetDefault("cleanup.reason_code", "secondary_auth_timeout")
	v.SetDefault("cleanup.batch_size", 500)
	v.SetDefault("cleanup.lock_ttl", 4*time.Minute)

	// Provider defaults
	v.SetDefault("providers.card_redirect.enabled", false)
	v.SetDefault("providers.chain_settlement.enabled", false)
	v.SetDefault("providers.chain_settlement.required_confirmations", 12)
	v.SetDefault("providers.stripe.enabled", false)
	v.SetDefault("providers.alipay.enabled", false)
	v.SetDefault("providers.breaker.failure_threshold", 5)
	v.SetDefault("providers.breaker.interval", 60*time.Second)
	v.SetDefault("providers.breaker.timeout", 30*time.Second)

	// Audit defaults
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.prefix", "payrecon")
}
