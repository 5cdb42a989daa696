package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig `env:",prefix=SERVER_"`
	Database DatabaseConfig
	Auth     AuthConfig
	Ledger   LedgerPolicy `env:",prefix=LEDGER_"`
	Jobs     JobsConfig   `env:",prefix=JOBS_"`
	Email    EmailConfig
	Services ServicesConfig
}

type ServerConfig struct {
	Port         string        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	FrontendURL  string        `env:"FRONTEND_URL,default=http://localhost:5173"`
	TimeZone     string        `env:"TIME_ZONE,default=Asia/Jakarta"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL,required"`
	MaxConns int    `env:"DB_MAX_CONNS,default=25"`
	MinConns int    `env:"DB_MIN_CONNS,default=5"`
}

type AuthConfig struct {
	JWTSecret     string `env:"JWT_SECRET,required"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminFullName string `env:"ADMIN_FULL_NAME,default=Administrator"`

	// Shared secret the order source sends in X-Callback-Token. Empty
	// disables the check.
	OrderWebhookToken string `env:"ORDER_WEBHOOK_TOKEN"`
}

// LedgerPolicy carries the commission and payout settings. It is handed to
// the ledger services at construction time.
type LedgerPolicy struct {
	DefaultCommissionRate         decimal.Decimal `env:"DEFAULT_COMMISSION_RATE,default=5"`
	MinPayoutAmount               decimal.Decimal `env:"MIN_PAYOUT_AMOUNT,default=50000"`
	HoldingPeriodDays             int             `env:"HOLDING_PERIOD_DAYS,default=30"`
	AllowInternalTestSelfReferral bool            `env:"ALLOW_INTERNAL_TEST_SELF_REFERRAL,default=false"`
	LockRetryAttempts             int             `env:"LOCK_RETRY_ATTEMPTS,default=3"`
	LockRetryBackoff              time.Duration   `env:"LOCK_RETRY_BACKOFF,default=50ms"`
	LockTimeout                   time.Duration   `env:"LOCK_TIMEOUT,default=5s"`
}

type JobsConfig struct {
	MaturationSchedule string `env:"MATURATION_SCHEDULE,default=0 0 * * *"`
	ReconcileSchedule  string `env:"RECONCILE_SCHEDULE,default=30 23 * * *"`
	StatsSchedule      string `env:"STATS_SCHEDULE,default=0 1 * * *"`
}

type EmailConfig struct {
	BrevoAPIKey string `env:"BREVO_API_KEY"`
	SenderEmail string `env:"EMAIL_SENDER"`
	SenderName  string `env:"EMAIL_SENDER_NAME"`
}

type ServicesConfig struct {
	CloudinaryURL string   `env:"CLOUDINARY_URL"`
	RedisURL      string   `env:"REDIS_URL"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS"`
	KafkaTopic    string   `env:"KAFKA_TOPIC,default=affiliate.ledger.events"`

	ClickDedupeWindow time.Duration `env:"CLICK_DEDUPE_WINDOW,default=24h"`
}

// DefaultLedgerPolicy mirrors the env defaults.
func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		DefaultCommissionRate: decimal.NewFromInt(5),
		MinPayoutAmount:       decimal.NewFromInt(50000),
		HoldingPeriodDays:     30,
		LockRetryAttempts:     3,
		LockRetryBackoff:      50 * time.Millisecond,
		LockTimeout:           5 * time.Second,
	}
}

func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p LedgerPolicy) Validate() error {
	if p.DefaultCommissionRate.IsNegative() || p.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("LEDGER_DEFAULT_COMMISSION_RATE must be between 0 and 100, got %s", p.DefaultCommissionRate)
	}
	if !p.MinPayoutAmount.IsPositive() {
		return fmt.Errorf("LEDGER_MIN_PAYOUT_AMOUNT must be positive, got %s", p.MinPayoutAmount)
	}
	if p.HoldingPeriodDays < 0 {
		return fmt.Errorf("LEDGER_HOLDING_PERIOD_DAYS must not be negative, got %d", p.HoldingPeriodDays)
	}
	if p.LockRetryAttempts < 1 {
		return fmt.Errorf("LEDGER_LOCK_RETRY_ATTEMPTS must be at least 1, got %d", p.LockRetryAttempts)
	}
	return nil
}

func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}
