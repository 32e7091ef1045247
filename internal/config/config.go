package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultDatabaseURL      = "permitpilot.db"
	defaultJWTTTL           = "24h"
	defaultUploadsDir       = "./uploads"
	defaultStaticBase       = "/static/uploads"
	defaultSummarizeModel   = "gpt-4"
	defaultSummarizeTimeout = "60s"
	defaultSummarizeSlots   = "4"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	UploadsDir string
	StaticBase string

	// OpenAI-compatible summarization endpoint.
	SummarizeBaseURL string
	SummarizeAPIKey  string
	SummarizeModel   string
	SummarizeTimeout time.Duration

	// Optional Redis-backed concurrency cap for summarization calls.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SummarizeSlots int
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", defaultHTTPAddr),
		DatabaseURL:      getEnv("DATABASE_URL", defaultDatabaseURL),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		UploadsDir:       getEnv("UPLOADS_DIR", defaultUploadsDir),
		StaticBase:       getEnv("STATIC_BASE", defaultStaticBase),
		SummarizeBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		SummarizeAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		SummarizeModel:   getEnv("SUMMARIZE_MODEL", defaultSummarizeModel),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.SummarizeTimeout, err = parseDurationEnv("SUMMARIZE_TIMEOUT", defaultSummarizeTimeout); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.SummarizeSlots, err = parseIntEnv("SUMMARIZE_SLOTS", defaultSummarizeSlots); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return d, nil
}

func parseIntEnv(key, fallback string) (int, error) {
	raw := getEnv(key, fallback)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, raw, err)
	}
	return n, nil
}
