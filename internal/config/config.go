package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "SolStash"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTokenDecimals  = 6
	defaultBreakFeeRate   = "0.02"
	defaultSweepAttempts  = 2
	defaultSweepDelay     = 20 * time.Second
	defaultConfirmTries   = 30
	defaultConfirmDelay   = 2 * time.Second
	defaultSchedulerSpec  = "@every 1m"
)

// RetryPolicy bounds retries for a single enumerated failure class.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Config captures application runtime configuration loaded from environment
// variables. It is constructed once at process start and passed by value into
// each component; nothing reads the environment after Load returns.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Chain settings.
	RPCURL        string
	TokenMint     string
	TokenDecimals int32
	Currency      string

	// Custody settings.
	HoldingWallet string
	FeePayerKey   string
	SignerURL     string
	SignerAppID   string
	SignerSecret  string

	// Payout settings.
	PayoutAuthToken string
	BreakFeeRate    decimal.Decimal

	// Sweep retry applies only to the on-chain insufficient-funds class,
	// which races with the indexer's notification lag.
	SweepRetry RetryPolicy

	// Confirmation polling bounds.
	ConfirmRetry RetryPolicy

	SchedulerEnabled bool
	SchedulerSpec    string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RPCURL:           os.Getenv("SOLANA_RPC_URL"),
		TokenMint:        os.Getenv("TOKEN_MINT"),
		TokenDecimals:    defaultTokenDecimals,
		Currency:         getEnv("TOKEN_CURRENCY", "USDC"),
		HoldingWallet:    os.Getenv("HOLDING_WALLET_ADDRESS"),
		FeePayerKey:      os.Getenv("FEE_PAYER_PRIVATE_KEY"),
		SignerURL:        getEnv("SIGNER_URL", "https://api.privy.io"),
		SignerAppID:      os.Getenv("SIGNER_APP_ID"),
		SignerSecret:     os.Getenv("SIGNER_APP_SECRET"),
		PayoutAuthToken:  os.Getenv("PAYOUT_AUTH_TOKEN"),
		SchedulerEnabled: getEnv("SCHEDULER_ENABLED", "false") == "true",
		SchedulerSpec:    getEnv("SCHEDULER_SPEC", defaultSchedulerSpec),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepRetry.Delay, err = durationEnv("SWEEP_RETRY_DELAY", defaultSweepDelay); err != nil {
		return Config{}, err
	}
	if cfg.SweepRetry.Attempts, err = intEnv("SWEEP_RETRY_ATTEMPTS", defaultSweepAttempts); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmRetry.Delay, err = durationEnv("CONFIRM_POLL_DELAY", defaultConfirmDelay); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmRetry.Attempts, err = intEnv("CONFIRM_POLL_ATTEMPTS", defaultConfirmTries); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("TOKEN_DECIMALS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_DECIMALS: %q", v)
		}
		cfg.TokenDecimals = int32(n)
	}

	rate := getEnv("BREAK_FEE_RATE", defaultBreakFeeRate)
	cfg.BreakFeeRate, err = decimal.NewFromString(rate)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BREAK_FEE_RATE: %w", err)
	}
	if cfg.BreakFeeRate.IsNegative() || cfg.BreakFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("BREAK_FEE_RATE must be in [0, 1): %s", rate)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("SOLANA_RPC_URL must be set")
	}
	if cfg.TokenMint == "" {
		return Config{}, fmt.Errorf("TOKEN_MINT must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment, where the
// in-memory backends may substitute for Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
