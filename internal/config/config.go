package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	WorkerCount int

	DatabasePath string
	// PlansFile is an optional YAML plan catalog; empty means the built-in one.
	PlansFile string
	JWTSecret string
	// User is the owner id the CLI acts as.
	User string

	OpenAIBaseURL      string
	OpenAIAPIKey       string
	TranscriptionModel string
	SummaryModel       string
	SummaryPrompt      string

	BlobBackend    string
	BlobDir        string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	OtelExporter    string
	OtelEndpoint    string
	OtelHeaders     string
	OtelInsecure    bool
	OtelSampleRatio float64
	Environment     string

	SettleDelay    time.Duration
	PollInterval   time.Duration
	MaxUploadBytes int64
}

// fileConfig is the optional TOML file for per-user settings.
type fileConfig struct {
	User          string `toml:"user"`
	DatabasePath  string `toml:"database_path"`
	PlansFile     string `toml:"plans_file"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OpenAIAPIKey  string `toml:"openai_api_key"`
	SummaryModel  string `toml:"summary_model"`
	SummaryPrompt string `toml:"summary_prompt"`
	BlobDir       string `toml:"blob_dir"`
	RedisAddr     string `toml:"redis_addr"`
}

// Load reads .env (if present), then the TOML config file, then the
// environment; later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ServerPort:   "8080",
		RedisAddr:    "localhost:6379",
		WorkerCount:  3,
		DatabasePath: filepath.Join(dataDir(), "meetscribe.db"),
		User:         defaultUser(),
		BlobBackend:  "local",
		BlobDir:      filepath.Join(dataDir(), "staging"),
		MinIOBucket:  "meetscribe-uploads",
		OtelExporter: "none",
		Environment:  "dev",
		SettleDelay:  500 * time.Millisecond,
		PollInterval: 5 * time.Second,
	}
	cfg.OtelSampleRatio = 1

	if path := configFilePath(); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		applyFile(cfg, fc)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.User, fc.User)
	set(&cfg.DatabasePath, expandTilde(fc.DatabasePath))
	set(&cfg.PlansFile, expandTilde(fc.PlansFile))
	set(&cfg.OpenAIBaseURL, fc.OpenAIBaseURL)
	set(&cfg.OpenAIAPIKey, fc.OpenAIAPIKey)
	set(&cfg.SummaryModel, fc.SummaryModel)
	set(&cfg.SummaryPrompt, fc.SummaryPrompt)
	set(&cfg.BlobDir, expandTilde(fc.BlobDir))
	set(&cfg.RedisAddr, fc.RedisAddr)
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPass = getEnv("REDIS_PASSWORD", cfg.RedisPass)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)

	cfg.DatabasePath = expandTilde(getEnv("MEETSCRIBE_DB_PATH", cfg.DatabasePath))
	cfg.PlansFile = expandTilde(getEnv("MEETSCRIBE_PLANS_FILE", cfg.PlansFile))
	cfg.JWTSecret = getEnv("MEETSCRIBE_JWT_SECRET", cfg.JWTSecret)
	cfg.User = getEnv("MEETSCRIBE_USER", cfg.User)

	cfg.OpenAIBaseURL = getEnv("MEETSCRIBE_OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIAPIKey = getEnv("MEETSCRIBE_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey))
	cfg.TranscriptionModel = getEnv("MEETSCRIBE_TRANSCRIPTION_MODEL", cfg.TranscriptionModel)
	cfg.SummaryModel = getEnv("MEETSCRIBE_SUMMARY_MODEL", cfg.SummaryModel)

	cfg.BlobBackend = strings.ToLower(getEnv("MEETSCRIBE_BLOB_BACKEND", cfg.BlobBackend))
	cfg.BlobDir = expandTilde(getEnv("MEETSCRIBE_BLOB_DIR", cfg.BlobDir))
	cfg.MinIOEndpoint = getEnv("MEETSCRIBE_MINIO_ENDPOINT", cfg.MinIOEndpoint)
	cfg.MinIOAccessKey = getEnv("MEETSCRIBE_MINIO_ACCESS_KEY", cfg.MinIOAccessKey)
	cfg.MinIOSecretKey = getEnv("MEETSCRIBE_MINIO_SECRET_KEY", cfg.MinIOSecretKey)
	cfg.MinIOBucket = getEnv("MEETSCRIBE_MINIO_BUCKET", cfg.MinIOBucket)
	cfg.MinIOUseSSL = getEnvBool("MEETSCRIBE_MINIO_USE_SSL", cfg.MinIOUseSSL)
	cfg.MinIORegion = getEnv("MEETSCRIBE_MINIO_REGION", cfg.MinIORegion)

	cfg.OtelExporter = strings.ToLower(getEnv("MEETSCRIBE_OTEL_EXPORTER", cfg.OtelExporter))
	cfg.OtelEndpoint = getEnv("MEETSCRIBE_OTEL_ENDPOINT", cfg.OtelEndpoint)
	cfg.OtelHeaders = getEnv("MEETSCRIBE_OTEL_HEADERS", cfg.OtelHeaders)
	cfg.OtelInsecure = getEnvBool("MEETSCRIBE_OTEL_INSECURE", cfg.OtelInsecure)
	cfg.OtelSampleRatio = getEnvFloat("MEETSCRIBE_OTEL_SAMPLE_RATIO", cfg.OtelSampleRatio)
	cfg.Environment = getEnv("MEETSCRIBE_ENV", cfg.Environment)

	cfg.SettleDelay = getEnvDuration("MEETSCRIBE_SETTLE_DELAY", cfg.SettleDelay)
	if cfg.SettleDelay == 0 {
		// An explicit 0 disables the delay; the pipeline reads 0 as its default.
		cfg.SettleDelay = -1
	}
	cfg.PollInterval = getEnvDuration("MEETSCRIBE_POLL_INTERVAL", cfg.PollInterval)
	cfg.MaxUploadBytes = int64(getEnvInt("MEETSCRIBE_MAX_UPLOAD_MB", 500)) << 20
}

func configFilePath() string {
	if p := os.Getenv("MEETSCRIBE_CONFIG"); p != "" {
		return p
	}
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "meetscribe")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "meetscribe")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meetscribe")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "meetscribe")
	}
	return filepath.Join(".", "data")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
