package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "Asia/Karachi", cfg.BankSms.TimeZone)
	assert.Equal(t, 2*time.Minute, cfg.Topup.LockExpiry)
	assert.Equal(t, "PKR", cfg.Topup.DefaultCurrency)
	assert.Equal(t, 0.5, cfg.Matcher.SimilarityThreshold)
	assert.Equal(t, 30*24*time.Hour, cfg.Matcher.HistoryWindow)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, time.Minute, cfg.Sweeper.ErrorBackoff)
	assert.Equal(t, "wallet.topups", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("BANK_SMS_SECRET", "s3cret")
	t.Setenv("QR_TOPUP_LOCK_EXPIRY_MINUTES", "1")
	t.Setenv("MATCHER_SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("MATCHER_HISTORY_DAYS", "7")
	t.Setenv("SWEEPER_INTERVAL", "30s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "s3cret", cfg.BankSms.Secret)
	assert.Equal(t, time.Minute, cfg.Topup.LockExpiry)
	assert.Equal(t, 0.8, cfg.Matcher.SimilarityThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Matcher.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"Given a zero threshold When loaded Then rejected", "MATCHER_SIMILARITY_THRESHOLD", "0"},
		{"Given a threshold above one When loaded Then rejected", "MATCHER_SIMILARITY_THRESHOLD", "1.5"},
		{"Given a negative window When loaded Then rejected", "MATCHER_HISTORY_DAYS", "-1"},
		{"Given a zero lock expiry When loaded Then rejected", "QR_TOPUP_LOCK_EXPIRY_MINUTES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Nil(t, getEnvList("X_MISSING", nil))
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.URL())
}
