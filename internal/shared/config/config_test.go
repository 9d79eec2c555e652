package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PAYRECON_JWT_SECRET", testJWTSecret)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Address)
		assert.Equal(t, int64(10), cfg.Payment.MaxAttemptsPerWindow)
		assert.Equal(t, 5*time.Minute, cfg.Recovery.GracePeriod)
		assert.Equal(t, 72*time.Hour, cfg.Recovery.Retention)
		assert.Equal(t, time.Hour, cfg.Cleanup.AbandonAfter)
		assert.Equal(t, "secondary_auth_timeout", cfg.Cleanup.ReasonCode)
		assert.Equal(t, uint32(5), cfg.Providers.Breaker.FailureThreshold)
		assert.False(t, cfg.Providers.Stripe.Enabled)
	})

	t.Run("environment overrides nested keys", func(t *testing.T) {
		t.Setenv("PAYRECON_JWT_SECRET", testJWTSecret)
		t.Setenv("PAYRECON_DATABASE_HOST", "db.internal")
		t.Setenv("PAYRECON_PAYMENT_MAX_ATTEMPTS_PER_WINDOW", "3")
		t.Setenv("PAYRECON_DB_PASSWORD", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, int64(3), cfg.Payment.MaxAttemptsPerWindow)
		assert.Equal(t, "s3cret", cfg.Database.Password)
	})

	t.Run("missing jwt secret fails validation", func(t *testing.T) {
		t.Setenv("PAYRECON_JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Address: ":8080"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Database: "payrecon", SSLMode: "disable"},
		Redis:    RedisConfig{Address: "localhost:6379"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
		Security: SecurityConfig{ReceiptTTL: 72 * time.Hour, RateLimitWindow: time.Hour},
		Payment:  PaymentConfig{MaxAttemptsPerWindow: 10},
		Recovery: RecoveryConfig{
			Enabled: true, Interval: 5 * time.Minute, GracePeriod: 5 * time.Minute, Retention: 72 * time.Hour,
			ProviderTimeout: 10 * time.Second, BatchSize: 100, LockTTL: 4 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Enabled: true, Interval: 5 * time.Minute, AbandonAfter: time.Hour,
			ReasonCode: "secondary_auth_timeout", BatchSize: 500, LockTTL: 4 * time.Minute,
		},
		Providers: ProvidersConfig{Breaker: BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second}},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("enabled provider needs credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers.Stripe.Enabled = true
		assert.Error(t, cfg.Validate())

		cfg.Providers.Stripe.SecretKey = "sk_test_x"
		cfg.Providers.Stripe.WebhookSecret = "whsec_x"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("cleanup must wait longer than recovery grace", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cleanup.AbandonAfter = time.Minute
		assert.Error(t, cfg.Validate())
	})

	t.Run("audit needs an at-rest secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Audit = AuditConfig{Enabled: true, Bucket: "audit"}
		assert.Error(t, cfg.Validate())

		cfg.Security.AtRestSecret = "a-long-enough-secret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Log.Level = "chatty"
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "pw", Database: "payrecon", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:pw@db:5432/payrecon?sslmode=disable", c.URL())
	assert.Contains(t, c.DSN(), "password=pw")
}
