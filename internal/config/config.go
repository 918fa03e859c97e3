// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr  string
	PGDSN string

	// ExchangeSecret authorizes the trusted frontend token exchange.
	ExchangeSecret string

	// CommunityDomain email suffix grants communityMember at login.
	CommunityDomain string
	// GitHubOrg, when set, grants organizationMember to public org members.
	GitHubOrg string

	CORSOrigin string

	RatePerSec float64
	RateBurst  int

	// UpcomingCron drives the gauge refresh job, robfig/cron syntax.
	UpcomingCron string

	ShutdownTimeout time.Duration
}

// Load reads .env if present, then the environment. Missing keys fall back
// to defaults usable in local development; production deployments set them
// all explicitly.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getenv("AGENDA_ADDR", ":8080"),
		PGDSN:           os.Getenv("AGENDA_PG_DSN"),
		ExchangeSecret:  os.Getenv("AGENDA_EXCHANGE_SECRET"),
		CommunityDomain: os.Getenv("AGENDA_COMMUNITY_DOMAIN"),
		GitHubOrg:       os.Getenv("AGENDA_GITHUB_ORG"),
		CORSOrigin:      getenv("AGENDA_CORS_ORIGIN", "*"),
		RatePerSec:      getfloat("AGENDA_RATE_RPS", 20),
		RateBurst:       getint("AGENDA_RATE_BURST", 40),
		UpcomingCron:    getenv("AGENDA_UPCOMING_CRON", "@every 5m"),
		ShutdownTimeout: getduration("AGENDA_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
