// Package config provides centralized configuration for the notedeck server.
// It loads configuration from CLI flags and environment variables, validates
// it, and fills in defaults.
//
// CLI flags control which services are mocked (--mock-backend, --no-s3, --test).
// Environment variables locate the remote notes service and tune the query cache.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/notedeck/internal/debounce"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/query"
	"github.com/kuitang/notedeck/internal/ratelimit"
)

const (
	defaultListenAddr = ":8080"
	defaultS3Region   = "auto"
	mockAPIPath       = "/api"
)

// Flags are the CLI switches. They choose mocks; everything else comes from env.
type Flags struct {
	MockBackend bool   // serve the mock notes service under /api (--mock-backend)
	NoS3        bool   // keep mock notes in in-memory S3 (--no-s3)
	Addr        string // overrides LISTEN_ADDR when set (--addr)
}

// Config holds all server configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	LogLevel   string

	// Mock service flags (controlled by CLI flags, not env vars)
	MockBackend bool
	NoS3        bool

	// Remote notes service
	NotesAPIURL     string
	NotesAPIRPS     float64
	NotesAPIBurst   int
	NotesAPITimeout time.Duration

	// Query cache and list view
	QueryStaleTime  time.Duration
	QueryRetryCount int
	SearchDebounce  time.Duration

	// Throttle in front of the mock notes service
	RateLimitConfig ratelimit.Config

	// S3 storage for the mock notes service (AWS_ env vars)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses the process command line. Call before LoadConfig.
func ParseFlags() Flags {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine exits on error; this is unreachable.
		panic(err)
	}
	return f
}

func parseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	var testMode bool
	fs.BoolVar(&f.MockBackend, "mock-backend", false, "Serve the mock notes service under /api and read from it")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Keep mock notes in in-memory S3")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --mock-backend --no-s3")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if testMode {
		f.MockBackend = true
		f.NoS3 = true
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{
		MockBackend: f.MockBackend,
		NoS3:        f.NoS3,
	}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("BASE_URL", ""), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Remote notes service
	cfg.NotesAPIURL = strings.TrimRight(getEnvOrDefault("NOTES_API_URL", ""), "/")
	if cfg.NotesAPIURL == "" && cfg.MockBackend {
		cfg.NotesAPIURL = cfg.BaseURL + mockAPIPath
	}
	cfg.NotesAPIRPS = parseFloat64OrDefault("NOTES_API_RPS", notesapi.DefaultRPS)
	cfg.NotesAPIBurst = parseIntOrDefault("NOTES_API_BURST", notesapi.DefaultBurst)
	cfg.NotesAPITimeout = parseDurationOrDefault("NOTES_API_TIMEOUT", notesapi.DefaultTimeout)

	// Query cache and list view
	cfg.QueryStaleTime = parseDurationOrDefault("QUERY_STALE_TIME", query.DefaultStaleTime)
	cfg.QueryRetryCount = parseIntOrDefault("QUERY_RETRY_COUNT", query.DefaultRetryCount)
	cfg.SearchDebounce = parseDurationOrDefault("SEARCH_DEBOUNCE", debounce.DefaultWindow)

	// Throttle in front of the mock notes service
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// S3 storage
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// S3 credentials are only needed when the mock service persists to real S3.
func (c *Config) Validate() error {
	var errs []string

	if c.NotesAPIURL == "" {
		errs = append(errs, "NOTES_API_URL is required (set env var or use --mock-backend)")
	} else if u, err := url.Parse(c.NotesAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "NOTES_API_URL must be an absolute http(s) URL")
	}

	if c.NotesAPIRPS <= 0 {
		errs = append(errs, "NOTES_API_RPS must be positive")
	}
	if c.NotesAPIBurst <= 0 {
		errs = append(errs, "NOTES_API_BURST must be positive")
	}
	if c.NotesAPITimeout <= 0 {
		errs = append(errs, "NOTES_API_TIMEOUT must be positive")
	}
	if c.QueryStaleTime < 0 {
		errs = append(errs, "QUERY_STALE_TIME must not be negative")
	}
	if c.QueryRetryCount < 0 {
		errs = append(errs, "QUERY_RETRY_COUNT must not be negative")
	}
	if c.SearchDebounce <= 0 {
		errs = append(errs, "SEARCH_DEBOUNCE must be positive")
	}

	if c.MockBackend {
		if c.RateLimitConfig.RPS <= 0 {
			errs = append(errs, "RATE_LIMIT_RPS must be positive")
		}
		if c.RateLimitConfig.Burst <= 0 {
			errs = append(errs, "RATE_LIMIT_BURST must be positive")
		}
		if !c.NoS3 {
			if c.AWSEndpointS3 == "" {
				errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
			}
			if c.AWSBucketName == "" {
				errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
			}
			if c.AWSAccessKeyID == "" {
				errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
			}
			if c.AWSSecretAccessKey == "" {
				errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MockAPIPath is where the mock notes service is mounted on the web server.
func (c *Config) MockAPIPath() string {
	return mockAPIPath
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notedeck server starting...")

	switch {
	case !c.MockBackend:
		fmt.Fprintf(w, "  Notes:   Remote service (%s)\n", c.NotesAPIURL)
	case c.NoS3:
		fmt.Fprintf(w, "  Notes:   Mock service at %s, in-memory S3 (--no-s3)\n", c.NotesAPIURL)
	default:
		fmt.Fprintf(w, "  Notes:   Mock service at %s, S3 bucket %s (endpoint: %s)\n", c.NotesAPIURL, c.AWSBucketName, c.AWSEndpointS3)
	}
	fmt.Fprintf(w, "  Client:  %.0f rps, burst %d, timeout %s\n", c.NotesAPIRPS, c.NotesAPIBurst, c.NotesAPITimeout)
	fmt.Fprintf(w, "  Cache:   stale after %s, %d retries\n", c.QueryStaleTime, c.QueryRetryCount)
	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(f Flags) *Config {
	cfg, err := LoadConfig(f)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
