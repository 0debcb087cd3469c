package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int32

	GeminiBaseURL string
	GeminiModel   string

	WorkerCount     int
	JobPollInterval time.Duration
	AttemptTimeout  time.Duration
	JobStaleTimeout time.Duration
	JobTTL          time.Duration
	SweepInterval   time.Duration

	BackoffBase        time.Duration
	BackoffMax         time.Duration
	CredentialCooldown time.Duration

	CacheTTLPlans   time.Duration
	CacheTTLDefault time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	AllowlistField string
	AllowlistFile  string
	AllowlistIDs   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),

		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		JobPollInterval: getEnvDuration("JOB_POLL_INTERVAL", 2*time.Second),
		AttemptTimeout:  getEnvDuration("ATTEMPT_TIMEOUT", 90*time.Second),
		JobStaleTimeout: getEnvDuration("JOB_STALE_TIMEOUT", 15*time.Minute),
		JobTTL:          getEnvDuration("JOB_TTL", 7*24*time.Hour),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Minute),

		BackoffBase:        getEnvDuration("BACKOFF_BASE", time.Second),
		BackoffMax:         getEnvDuration("BACKOFF_MAX", time.Minute),
		CredentialCooldown: getEnvDuration("CREDENTIAL_COOLDOWN", 5*time.Minute),

		CacheTTLPlans:   getEnvDuration("CACHE_TTL_PLANS", 7*24*time.Hour),
		CacheTTLDefault: getEnvDuration("CACHE_TTL_DEFAULT", 24*time.Hour),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		AllowlistField: getEnv("ALLOWLIST_FIELD", ""),
		AllowlistFile:  getEnv("ALLOWLIST_FILE", ""),
		AllowlistIDs:   getEnvList("ALLOWLIST_IDS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
