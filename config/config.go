package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxContentLength = 65535
	DefaultPort             = "8080"

	// MinJWTSecretLength is the HS256 key size in bytes.
	MinJWTSecretLength = 32
)

type Config struct {
	DatabaseURL string
	JWTSecret   []byte
	Port        string
	LogLevel    slog.Level

	ArchivePath        string
	ArchiveCompression string
	ArchiveOnClose     bool

	MaxContentLength int

	// RateLimitRPS caps requests per second across the API; 0 disables it.
	RateLimitRPS       int
	CORSAllowedOrigins []string
}

// LoadConfig reads the process environment, after loading a .env file from
// the working directory when one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests need not touch the
// process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getenv("DATABASE_URL"),
		JWTSecret:          []byte(getenv("JWT_SECRET")),
		Port:               valueOr(getenv("PORT"), DefaultPort),
		ArchivePath:        valueOr(getenv("ARCHIVE_PATH"), "chat-archive.db"),
		ArchiveCompression: strings.ToLower(valueOr(getenv("ARCHIVE_COMPRESSION"), "zstd")),
		MaxContentLength:   DefaultMaxContentLength,
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength)
	}

	switch cfg.ArchiveCompression {
	case "zstd", "lz4", "none":
	default:
		return nil, fmt.Errorf("invalid ARCHIVE_COMPRESSION %q", cfg.ArchiveCompression)
	}

	if v := getenv("CHAT_MAX_CONTENT_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CHAT_MAX_CONTENT_LENGTH %q", v)
		}
		cfg.MaxContentLength = n
	}

	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q", v)
		}
		cfg.RateLimitRPS = n
	}

	for _, origin := range strings.Split(getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if v := getenv("ARCHIVE_ON_CLOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ARCHIVE_ON_CLOSE %q", v)
		}
		cfg.ArchiveOnClose = b
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q", v)
		}
	}

	if strings.Contains(cfg.Port, ":") {
		return nil, fmt.Errorf("invalid PORT %q: expected a bare port number", cfg.Port)
	}

	return cfg, nil
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
