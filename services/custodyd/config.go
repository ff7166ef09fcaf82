package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures the runtime settings for custodyd.
type Config struct {
	PoolRPCURL         string
	PoolRPCToken       string
	SharedSecretHeader string
	SharedSecretValue  string
	Listen             string
	RateLimitPerMin    int
	AllowInsecure      bool
	AssetsConfigPath   string
	CustodialAccount   string
	Environment        string
}

const (
	envPoolRPCURL         = "CUSTODY_POOL_RPC_URL"
	envPoolRPCToken       = "CUSTODY_POOL_RPC_TOKEN"
	envSharedSecretHeader = "CUSTODY_SHARED_SECRET_HEADER"
	envSharedSecret       = "CUSTODY_SHARED_SECRET"
	envListen             = "CUSTODY_LISTEN"
	envRateLimitPerMin    = "CUSTODY_RATE_PER_MIN"
	envAllowInsecure      = "CUSTODY_ALLOW_INSECURE"
	envAssetsConfigPath   = "CUSTODY_ASSETS_CONFIG"
	envCustodialAccount   = "CUSTODY_ACCOUNT"
	envEnvironment        = "CUSTODY_ENV"

	defaultPoolRPCURL         = "http://127.0.0.1:8645"
	defaultSharedSecretHeader = "X-Custody-Shared-Secret"
	defaultListen             = "0.0.0.0:9470"
	defaultRateLimitPerMin    = 120
	defaultAssetsConfigPath   = "services/custodyd/config.toml"
)

// LoadConfigFromEnv constructs a Config using environment variables and defaults.
func LoadConfigFromEnv() Config {
	return Config{
		PoolRPCURL:         stringFromEnv(envPoolRPCURL, defaultPoolRPCURL),
		PoolRPCToken:       strings.TrimSpace(os.Getenv(envPoolRPCToken)),
		SharedSecretHeader: stringFromEnv(envSharedSecretHeader, defaultSharedSecretHeader),
		SharedSecretValue:  strings.TrimSpace(os.Getenv(envSharedSecret)),
		Listen:             stringFromEnv(envListen, defaultListen),
		RateLimitPerMin:    intFromEnv(envRateLimitPerMin, defaultRateLimitPerMin),
		AllowInsecure:      boolFromEnv(envAllowInsecure, false),
		AssetsConfigPath:   stringFromEnv(envAssetsConfigPath, defaultAssetsConfigPath),
		CustodialAccount:   strings.TrimSpace(os.Getenv(envCustodialAccount)),
		Environment:        strings.TrimSpace(os.Getenv(envEnvironment)),
	}
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.PoolRPCToken != "" {
		clone.PoolRPCToken = maskSecret(clone.PoolRPCToken)
	}
	if clone.SharedSecretValue != "" {
		clone.SharedSecretValue = maskSecret(clone.SharedSecretValue)
	}
	return clone
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.PoolRPCURL) == "" {
		return fmt.Errorf("pool rpc url required")
	}
	if strings.TrimSpace(cfg.CustodialAccount) == "" {
		return fmt.Errorf("custodial account address required")
	}
	if cfg.SharedSecretValue == "" && !cfg.AllowInsecure {
		return fmt.Errorf("shared secret required unless %s is true", envAllowInsecure)
	}
	if cfg.RateLimitPerMin < 0 {
		return fmt.Errorf("rate limit per minute must be non-negative")
	}
	return nil
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func intFromEnv(key string, fallback int) int {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}
