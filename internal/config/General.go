package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultWebPort        = "8080"
	DefaultPoolPageLimit  = 50
	DefaultSwapSlippage   = 0.01
	DefaultHTTPTimeoutSec = 30
)

// Config holds everything the dashboard backend reads from the environment.
// It is built once in main and handed to each component constructor.
type Config struct {
	Endpoints Endpoints
	Protocol  Protocol

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// WebPort is the port the JSON API listens on.
	WebPort string
	// PoolPageLimit is the page size used when listing every pool.
	PoolPageLimit int
	// SwapSlippage is the fixed maximum slippage applied to swaps, as a fraction.
	SwapSlippage float64
	// HTTPTimeout bounds each outbound HTTP call. Zero means no timeout.
	HTTPTimeout time.Duration
	// ActionGuard rejects a second identical action while the first is pending.
	ActionGuard bool
}

// Load reads configuration from environment variables.
// Endpoint and protocol variables are required; the rest fall back to defaults.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &Config{}

	var err error
	if cfg.Endpoints, err = loadEndpointConfig(); err != nil {
		return nil, err
	}
	if cfg.Protocol, err = loadProtocolConfig(); err != nil {
		return nil, err
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)

	pageLimit, err := getEnvAsUint64OrDefault("POOL_PAGE_LIMIT", DefaultPoolPageLimit)
	if err != nil {
		return nil, err
	}
	if pageLimit == 0 {
		return nil, errors.New("environment variable POOL_PAGE_LIMIT must be positive")
	}
	cfg.PoolPageLimit = int(pageLimit)

	cfg.SwapSlippage, err = getEnvAsFloat64OrDefault("SWAP_SLIPPAGE", DefaultSwapSlippage)
	if err != nil {
		return nil, err
	}
	if cfg.SwapSlippage <= 0 || cfg.SwapSlippage >= 1 {
		return nil, errors.New("environment variable SWAP_SLIPPAGE must be between 0 and 1 (exclusive)")
	}

	timeoutSec, err := getEnvAsUint64OrDefault("HTTP_TIMEOUT_SECONDS", DefaultHTTPTimeoutSec)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(timeoutSec) * time.Second

	cfg.ActionGuard, err = getEnvAsBoolOrDefault("ACTION_GUARD", true)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("webPort", cfg.WebPort).
		Int("poolPageLimit", cfg.PoolPageLimit).
		Float64("swapSlippage", cfg.SwapSlippage).
		Dur("httpTimeout", cfg.HTTPTimeout).
		Bool("actionGuard", cfg.ActionGuard).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return fallback
}

// getEnvAsUint64OrDefault returns fallback when the variable is unset and an error when it is invalid.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault returns fallback when the variable is unset and an error when it is invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBoolOrDefault(key string, fallback bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
