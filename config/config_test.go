package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.APIBaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.APIBaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "unknown ton endpoint",
			mutate: func(cfg *Config) {
				cfg.TONEndpoint = "devnet"
			},
			wantErr: "TON endpoint",
		},
		{
			name: "zero stickers per purchase",
			mutate: func(cfg *Config) {
				cfg.StickersPerPurchase = 0
			},
			wantErr: "stickers per purchase",
		},
		{
			name: "negative gas",
			mutate: func(cfg *Config) {
				cfg.GasAmount = decimal.RequireFromString("-0.1")
			},
			wantErr: "gas amount",
		},
		{
			name: "zero check interval",
			mutate: func(cfg *Config) {
				cfg.CheckInterval = 0
			},
			wantErr: "check interval",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.RequestTimeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff exceeds max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
			},
			wantErr: "retry backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateSecrets(); err == nil || !strings.Contains(err.Error(), "API token") {
		t.Fatalf("expected API token error, got %v", err)
	}

	cfg.APIToken = "token"
	cfg.SeedPhrase = "too short"
	if err := cfg.ValidateSecrets(); err == nil || !strings.Contains(err.Error(), "seed phrase") {
		t.Fatalf("expected seed phrase error, got %v", err)
	}

	cfg.SeedPhrase = strings.Repeat("word ", 24)
	if err := cfg.ValidateSecrets(); err != nil {
		t.Fatalf("expected valid secrets, got %v", err)
	}
}
