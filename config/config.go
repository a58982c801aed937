// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	BankSms  BankSmsConfig
	Topup    TopupConfig
	Matcher  MatcherConfig
	Sweeper  SweeperConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
	// MigrateOnStart applies the embedded schema before serving.
	MigrateOnStart bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type BankSmsConfig struct {
	Secret             string
	TimeZone           string
	RateLimitPerMinute int
}

type TopupConfig struct {
	LockExpiry      time.Duration
	MerchantAccount string
	DefaultCurrency string
}

type MatcherConfig struct {
	SimilarityThreshold float64
	HistoryWindow       time.Duration
}

type SweeperConfig struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
}

func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8040"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "wallet_topup"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 50)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 10)),

			MigrateOnStart: getEnvBool("DB_MIGRATE_ON_START", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "redis"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "wallet.topups"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		BankSms: BankSmsConfig{
			Secret:             getEnv("BANK_SMS_SECRET", ""),
			TimeZone:           getEnv("BANK_SMS_TIMEZONE", "Asia/Karachi"),
			RateLimitPerMinute: getEnvInt("BANK_SMS_RATE_LIMIT_PER_MINUTE", 60),
		},
		Topup: TopupConfig{
			LockExpiry:      time.Duration(getEnvInt("QR_TOPUP_LOCK_EXPIRY_MINUTES", 2)) * time.Minute,
			MerchantAccount: getEnv("QR_MERCHANT_ACCOUNT", ""),
			DefaultCurrency: getEnv("TOPUP_DEFAULT_CURRENCY", "PKR"),
		},
		Matcher: MatcherConfig{
			SimilarityThreshold: getEnvFloat("MATCHER_SIMILARITY_THRESHOLD", 0.5),
			HistoryWindow:       time.Duration(getEnvInt("MATCHER_HISTORY_DAYS", 30)) * 24 * time.Hour,
		},
		Sweeper: SweeperConfig{
			Interval:     getEnvDuration("SWEEPER_INTERVAL", 5*time.Minute),
			ErrorBackoff: getEnvDuration("SWEEPER_ERROR_BACKOFF", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET is empty; every bearer token will be rejected")
	}
	if cfg.BankSms.Secret == "" {
		logger.Warn("BANK_SMS_SECRET is empty; the bank sms webhook is unauthenticated")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("KAFKA_BROKERS is empty; topup events will not be published")
	}
	if cfg.Topup.LockExpiry > 2*time.Minute {
		logger.Warn("lock expiry above the two minute cap will be clamped",
			zap.Duration("configured", cfg.Topup.LockExpiry))
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("SERVER_PORT must not be empty")
	}
	if t := c.Matcher.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("MATCHER_SIMILARITY_THRESHOLD must be in (0,1], got %v", t)
	}
	if c.Matcher.HistoryWindow <= 0 {
		return fmt.Errorf("MATCHER_HISTORY_DAYS must be positive")
	}
	if c.Topup.LockExpiry <= 0 {
		return fmt.Errorf("QR_TOPUP_LOCK_EXPIRY_MINUTES must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
