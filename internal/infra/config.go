package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultBackendURL = "http://localhost:8000"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	BackendURL         string
	DatabaseURL        string
	JWTSecret          string
	RemoveBGAPIKey     string
	RemoveBGBaseURL    string
	FashnAPIKey        string
	FashnBaseURL       string
	BriaAPIToken       string
	BriaBaseURL        string
	StoragePath        string
	StorageBaseURL     string
	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	UpstreamTimeout    time.Duration
	MaskSessionTTL     time.Duration
	MaskMaxSessions    int
	MaskMemoryBytes    int
	MaskHistoryBytes   int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		BackendURL:         strings.TrimRight(getEnv("BACKEND_API_URL", getEnv("NEXT_PUBLIC_API_URL", defaultBackendURL)), "/"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RemoveBGAPIKey:     os.Getenv("REMOVE_BG_API_KEY"),
		RemoveBGBaseURL:    getEnv("REMOVE_BG_BASE_URL", "https://api.remove.bg/v1.0"),
		FashnAPIKey:        os.Getenv("FASHN_API_KEY"),
		FashnBaseURL:       getEnv("FASHN_BASE_URL", "https://api.fashn.ai/v1"),
		BriaAPIToken:       os.Getenv("BRIA_API_TOKEN"),
		BriaBaseURL:        getEnv("BRIA_BASE_URL", "https://engine.prod.bria-api.com/v1"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 10)) << 20,
		UpstreamTimeout:    time.Second * time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 120)),
		MaskSessionTTL:     time.Minute * time.Duration(getEnvInt("MASK_SESSION_TTL_MINUTES", 30)),
		MaskMaxSessions:    getEnvInt("MASK_MAX_SESSIONS", 256),
		MaskMemoryBytes:    getEnvInt("MASK_MEMORY_MB", 2048) << 20,
		MaskHistoryBytes:   getEnvInt("MASK_HISTORY_MB", 128) << 20,
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 130)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	parsed, err := url.Parse(cfg.BackendURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("BACKEND_API_URL must be an absolute http(s) url, got %q", cfg.BackendURL)
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	return cfg, nil
}

// HasDatabase reports whether client state should be persisted in Postgres.
func (c *Config) HasDatabase() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
