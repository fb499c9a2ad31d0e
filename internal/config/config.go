// Package config provides centralized configuration for spverify runs.
// It loads configuration from environment variables (optionally seeded from a
// .env file), applies CLI flag overrides, validates the result, and provides
// sensible defaults matching a locally running application under test.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/spverify/internal/urlutil"
)

const (
	defaultBaseURL      = "http://localhost:3000"
	defaultLoginURL     = "http://localhost:5173"
	defaultAPIURL       = "http://localhost:3300/api"
	defaultEvidenceDir  = "verification"
	defaultStepTimeout  = 5 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultS3Region     = "auto"
)

// Browsers lists the engines Playwright can launch.
var Browsers = []string{"chromium", "firefox", "webkit"}

// Config holds all run configuration.
type Config struct {
	// Application under test
	BaseURL  string // Admin dashboard origin (quote submission flow)
	LoginURL string // SP portal origin (login + inbox flow)
	APIURL   string // REST API base for the API flow check

	// Browser
	Browser  string
	Headless bool
	SlowMo   time.Duration
	Viewport [2]int

	// Step timing
	StepTimeout  time.Duration
	PollInterval time.Duration

	// Execution
	Parallel    int
	EvidenceDir string
	LogLevel    string

	// Credentials used by the login flow and API check
	SPEmail     string
	SPPassword  string
	Token       string // Static token seeded into localStorage; minted when empty
	TokenSecret string // HMAC secret for minted tokens

	// API check pacing
	APIRPS float64

	// Optional S3 mirror for evidence (uses AWS_ env vars)
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string
}

// Overrides carries CLI flag values. Zero values leave the env/default value in place.
type Overrides struct {
	BaseURL     string
	LoginURL    string
	APIURL      string
	Browser     string
	Headed      bool
	Parallel    int
	EvidenceDir string
	StepTimeout time.Duration
	LogLevel    string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadDotEnv loads key=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds configuration from environment variables and CLI overrides.
func Load(o Overrides) (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = urlutil.NormalizeBaseURL(getEnvOrDefault("SPVERIFY_BASE_URL", defaultBaseURL))
	cfg.LoginURL = urlutil.NormalizeBaseURL(getEnvOrDefault("SPVERIFY_LOGIN_URL", defaultLoginURL))
	cfg.APIURL = urlutil.NormalizeBaseURL(getEnvOrDefault("SPVERIFY_API_URL", defaultAPIURL))

	cfg.Browser = strings.ToLower(getEnvOrDefault("SPVERIFY_BROWSER", "chromium"))
	cfg.Headless = parseBoolOrDefault("SPVERIFY_HEADLESS", true)
	cfg.SlowMo = parseDurationOrDefault("SPVERIFY_SLOWMO", 0)
	cfg.Viewport = [2]int{
		parseIntOrDefault("SPVERIFY_VIEWPORT_WIDTH", 1280),
		parseIntOrDefault("SPVERIFY_VIEWPORT_HEIGHT", 800),
	}

	cfg.StepTimeout = parseDurationOrDefault("SPVERIFY_STEP_TIMEOUT", defaultStepTimeout)
	cfg.PollInterval = parseDurationOrDefault("SPVERIFY_POLL_INTERVAL", defaultPollInterval)

	cfg.Parallel = parseIntOrDefault("SPVERIFY_PARALLEL", 1)
	cfg.EvidenceDir = getEnvOrDefault("SPVERIFY_EVIDENCE_DIR", defaultEvidenceDir)
	cfg.LogLevel = getEnvOrDefault("SPVERIFY_LOG_LEVEL", "info")

	cfg.SPEmail = getEnvOrDefault("SPVERIFY_SP_EMAIL", "test@sp.com")
	cfg.SPPassword = getEnvOrDefault("SPVERIFY_SP_PASSWORD", "password")
	cfg.Token = strings.TrimSpace(os.Getenv("SPVERIFY_TOKEN"))
	cfg.TokenSecret = strings.TrimSpace(os.Getenv("SPVERIFY_TOKEN_SECRET"))

	cfg.APIRPS = parseFloat64OrDefault("SPVERIFY_API_RPS", 5)

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))

	cfg.apply(o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(o Overrides) {
	if o.BaseURL != "" {
		c.BaseURL = urlutil.NormalizeBaseURL(o.BaseURL)
	}
	if o.LoginURL != "" {
		c.LoginURL = urlutil.NormalizeBaseURL(o.LoginURL)
	}
	if o.APIURL != "" {
		c.APIURL = urlutil.NormalizeBaseURL(o.APIURL)
	}
	if o.Browser != "" {
		c.Browser = strings.ToLower(o.Browser)
	}
	if o.Headed {
		c.Headless = false
	}
	if o.Parallel > 0 {
		c.Parallel = o.Parallel
	}
	if o.EvidenceDir != "" {
		c.EvidenceDir = o.EvidenceDir
	}
	if o.StepTimeout > 0 {
		c.StepTimeout = o.StepTimeout
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate checks that all configuration is present and consistent.
func (c *Config) Validate() error {
	var errs []string

	for name, v := range map[string]string{
		"SPVERIFY_BASE_URL":  c.BaseURL,
		"SPVERIFY_LOGIN_URL": c.LoginURL,
		"SPVERIFY_API_URL":   c.APIURL,
	} {
		if !urlutil.ValidateBaseURL(v) {
			errs = append(errs, fmt.Sprintf("%s must be an absolute http(s) URL (got %q)", name, v))
		}
	}

	if !isKnownBrowser(c.Browser) {
		errs = append(errs, fmt.Sprintf("SPVERIFY_BROWSER must be one of %s", strings.Join(Browsers, ", ")))
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, "SPVERIFY_STEP_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "SPVERIFY_POLL_INTERVAL must be positive")
	} else if c.PollInterval > c.StepTimeout {
		errs = append(errs, "SPVERIFY_POLL_INTERVAL must not exceed SPVERIFY_STEP_TIMEOUT")
	}
	if c.Parallel <= 0 {
		errs = append(errs, "SPVERIFY_PARALLEL must be positive")
	}
	if strings.TrimSpace(c.EvidenceDir) == "" {
		errs = append(errs, "SPVERIFY_EVIDENCE_DIR must not be empty")
	}
	if c.APIRPS <= 0 {
		errs = append(errs, "SPVERIFY_API_RPS must be positive")
	}
	if c.Token == "" && c.TokenSecret != "" && len(c.TokenSecret) < 32 {
		errs = append(errs, "SPVERIFY_TOKEN_SECRET must be at least 32 characters")
	}

	// The S3 mirror is all-or-nothing.
	if c.AWSBucketName != "" {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required when BUCKET_NAME is set")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when BUCKET_NAME is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when BUCKET_NAME is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MirrorEnabled returns true when evidence should also be uploaded to S3.
func (c *Config) MirrorEnabled() bool {
	return c.AWSBucketName != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "spverify starting...")
	fmt.Fprintf(w, "  Admin:    %s\n", c.BaseURL)
	fmt.Fprintf(w, "  Portal:   %s\n", c.LoginURL)
	fmt.Fprintf(w, "  API:      %s\n", c.APIURL)

	mode := "headless"
	if !c.Headless {
		mode = "headed"
	}
	fmt.Fprintf(w, "  Browser:  %s (%s)\n", c.Browser, mode)
	fmt.Fprintf(w, "  Timeout:  %s per step (poll %s)\n", c.StepTimeout, c.PollInterval)
	fmt.Fprintf(w, "  Parallel: %d\n", c.Parallel)

	if c.MirrorEnabled() {
		fmt.Fprintf(w, "  Evidence: %s (mirrored to s3://%s)\n", c.EvidenceDir, c.AWSBucketName)
	} else {
		fmt.Fprintf(w, "  Evidence: %s\n", c.EvidenceDir)
	}
	switch {
	case c.Token != "":
		fmt.Fprintln(w, "  Token:    From SPVERIFY_TOKEN env var")
	case c.TokenSecret != "":
		fmt.Fprintln(w, "  Token:    Minted per run (HS256)")
	default:
		fmt.Fprintln(w, "  Token:    Placeholder")
	}
	fmt.Fprintln(w, "")
}

func isKnownBrowser(name string) bool {
	for _, b := range Browsers {
		if b == name {
			return true
		}
	}
	return false
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
	value := os.Getenv(key)
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
