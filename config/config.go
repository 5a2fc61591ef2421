// Package config holds bot configuration loaded from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds every tunable the bot consumes. Secrets (API token, seed
// phrase) come from the environment only.
type Config struct {
	APIBaseURL   string `envconfig:"STICKER_API_BASE_URL" default:"https://api.stickerdom.store"`
	APIToken     string `envconfig:"STICKER_API_TOKEN" default:""`
	UserAgent    string `envconfig:"STICKER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	SeedPhrase   string `envconfig:"TON_SEED_PHRASE" default:""`
	TONEndpoint  string `envconfig:"TON_ENDPOINT" default:"mainnet"`
	TONConfigURL string `envconfig:"TON_CONFIG_URL" default:"https://ton.org/global.config.json"`

	StickersPerPurchase int             `envconfig:"STICKERS_PER_PURCHASE" default:"5"`
	GasAmount           decimal.Decimal `envconfig:"GAS_AMOUNT" default:"0.1"`
	PurchaseDelay       time.Duration   `envconfig:"PURCHASE_DELAY" default:"1s"`

	CheckInterval      time.Duration `envconfig:"CHECK_INTERVAL" default:"1s"`
	NotFoundRetryDelay time.Duration `envconfig:"NOT_FOUND_RETRY_DELAY" default:"3s"`

	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"5"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"200ms"`
	RetryBackoffMax time.Duration `envconfig:"RETRY_BACKOFF_MAX" default:"2s"`

	SettleWait  time.Duration `envconfig:"SETTLE_WAIT" default:"5s"`
	MetricsAddr string        `envconfig:"METRICS_ADDR" default:""`
	Verbose     bool          `envconfig:"VERBOSE" default:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns the defaults without touching the environment.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:          "https://api.stickerdom.store",
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		TONEndpoint:         "mainnet",
		TONConfigURL:        "https://ton.org/global.config.json",
		StickersPerPurchase: 5,
		GasAmount:           decimal.RequireFromString("0.1"),
		PurchaseDelay:       time.Second,
		CheckInterval:       time.Second,
		NotFoundRetryDelay:  3 * time.Second,
		MaxRetries:          5,
		RequestTimeout:      10 * time.Second,
		RetryBackoff:        200 * time.Millisecond,
		RetryBackoffMax:     2 * time.Second,
		SettleWait:          5 * time.Second,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("API base URL must include a host")
	}

	if c.TONEndpoint != "mainnet" && c.TONEndpoint != "testnet" {
		return fmt.Errorf("TON endpoint must be mainnet or testnet")
	}
	if c.StickersPerPurchase <= 0 {
		return fmt.Errorf("stickers per purchase must be positive")
	}
	if c.GasAmount.IsNegative() {
		return fmt.Errorf("gas amount cannot be negative")
	}
	if c.PurchaseDelay < 0 {
		return fmt.Errorf("purchase delay cannot be negative")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive")
	}
	if c.NotFoundRetryDelay <= 0 {
		return fmt.Errorf("not-found retry delay must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.SettleWait < 0 {
		return fmt.Errorf("settle wait cannot be negative")
	}
	return nil
}

// ValidateSecrets checks the credentials needed for a live run. Kept apart
// from Validate so tests can build configs without real secrets.
func (c *Config) ValidateSecrets() error {
	if strings.TrimSpace(c.APIToken) == "" {
		return fmt.Errorf("API token cannot be empty (set STICKER_API_TOKEN)")
	}
	words := strings.Fields(c.SeedPhrase)
	if len(words) != 24 {
		return fmt.Errorf("seed phrase must contain 24 words, got %d (set TON_SEED_PHRASE)", len(words))
	}
	return nil
}
