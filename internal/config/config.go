// Package config provides configuration loading and validation for the
// matching service. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the matching service.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (job queue). Optional; without it the trigger endpoint is
	// disabled and matching runs synchronously only.
	RedisURL string `koanf:"redis_url"`

	// Embedding provider
	EmbedServiceURL     string `koanf:"embed_service_url"`
	EmbedTimeoutSeconds int    `koanf:"embed_timeout_seconds"`

	// Feature flags
	TextSignalEnabled   bool `koanf:"text_signal_enabled"`  // Enable semantic text similarity
	ImageSignalEnabled  bool `koanf:"image_signal_enabled"` // Enable perceptual image similarity
	GeoPrefilterEnabled bool `koanf:"geo_prefilter_enabled"`

	// Matching pipeline tuning
	CandidatePoolSize int     `koanf:"candidate_pool_size"`
	MaxGeoRadiusKM    float64 `koanf:"max_geo_radius_km"`
	TimeDecayDays     float64 `koanf:"time_decay_days"`
	MinMatchScore     float64 `koanf:"min_match_score"`
	TopK              int     `koanf:"top_k"`
	GeoFuzzRadiusM    float64 `koanf:"geo_fuzz_radius_m"`
	CalibrationFile   string  `koanf:"calibration_file"`

	// Background jobs
	JobTimeoutSeconds  int `koanf:"job_timeout_seconds"`
	JobMaxAttempts     int `koanf:"job_max_attempts"`
	DebounceSeconds    int `koanf:"debounce_seconds"`
	MatchRetentionDays int `koanf:"match_retention_days"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingEmbedServiceURL = errors.New("EMBED_SERVICE_URL is required when the text signal is enabled")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidMinMatchScore   = errors.New("MIN_MATCH_SCORE must be between 0 and 1")
	ErrInvalidPoolSize        = errors.New("CANDIDATE_POOL_SIZE must be positive")
	ErrInvalidTopK            = errors.New("TOP_K must be positive")
	ErrInvalidGeoRadius       = errors.New("MAX_GEO_RADIUS_KM must be positive")
	ErrInvalidTimeDecay       = errors.New("TIME_DECAY_DAYS must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultEmbedTimeoutSeconds = 5
	DefaultCandidatePoolSize   = 50
	DefaultMaxGeoRadiusKM      = 50.0
	DefaultTimeDecayDays       = 30.0
	DefaultMinMatchScore       = 0.3
	DefaultTopK                = 10
	DefaultGeoFuzzRadiusM      = 150.0
	DefaultJobTimeoutSeconds   = 300
	DefaultJobMaxAttempts      = 3
	DefaultDebounceSeconds     = 30
	DefaultMatchRetentionDays  = 90
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"RECLAIM_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	embedTimeout, err := getEnvIntOrDefault("EMBED_TIMEOUT_SECONDS", k.Int("embed_timeout_seconds"), DefaultEmbedTimeoutSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	poolSize, err := getEnvIntOrDefault("CANDIDATE_POOL_SIZE", k.Int("candidate_pool_size"), DefaultCandidatePoolSize)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	topK, err := getEnvIntOrDefault("TOP_K", k.Int("top_k"), DefaultTopK)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	jobTimeout, err := getEnvIntOrDefault("JOB_TIMEOUT_SECONDS", k.Int("job_timeout_seconds"), DefaultJobTimeoutSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	jobAttempts, err := getEnvIntOrDefault("JOB_MAX_ATTEMPTS", k.Int("job_max_attempts"), DefaultJobMaxAttempts)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	debounce, err := getEnvIntOrDefault("DEBOUNCE_SECONDS", k.Int("debounce_seconds"), DefaultDebounceSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	retention, err := getEnvIntOrDefault("MATCH_RETENTION_DAYS", k.Int("match_retention_days"), DefaultMatchRetentionDays)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	geoRadius, err := getEnvFloatOrDefault("MAX_GEO_RADIUS_KM", k.Float64("max_geo_radius_km"), DefaultMaxGeoRadiusKM)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	timeDecay, err := getEnvFloatOrDefault("TIME_DECAY_DAYS", k.Float64("time_decay_days"), DefaultTimeDecayDays)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	minScore, err := getEnvFloatOrDefault("MIN_MATCH_SCORE", k.Float64("min_match_score"), DefaultMinMatchScore)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	geoFuzz, err := getEnvFloatOrDefault("GEO_FUZZ_RADIUS_M", k.Float64("geo_fuzz_radius_m"), DefaultGeoFuzzRadiusM)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"RECLAIM_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		EmbedServiceURL:     getEnvOrKoanf("EMBED_SERVICE_URL", k, "embed_service_url"),
		EmbedTimeoutSeconds: embedTimeout,
		TextSignalEnabled:   getEnvBoolOrKoanf("TEXT_SIGNAL_ENABLED", k, "text_signal_enabled", false),
		ImageSignalEnabled:  getEnvBoolOrKoanf("IMAGE_SIGNAL_ENABLED", k, "image_signal_enabled", false),
		GeoPrefilterEnabled: getEnvBoolOrKoanf("GEO_PREFILTER_ENABLED", k, "geo_prefilter_enabled", true),
		CandidatePoolSize:   poolSize,
		MaxGeoRadiusKM:      geoRadius,
		TimeDecayDays:       timeDecay,
		MinMatchScore:       minScore,
		TopK:                topK,
		GeoFuzzRadiusM:      geoFuzz,
		CalibrationFile:     getEnvOrKoanf("CALIBRATION_FILE", k, "calibration_file"),
		JobTimeoutSeconds:   jobTimeout,
		JobMaxAttempts:      jobAttempts,
		DebounceSeconds:     debounce,
		MatchRetentionDays:  retention,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvBoolOrKoanf returns the environment variable as bool if set,
// otherwise the koanf value, or default. Env vars take precedence over
// file config.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and
// the tuning knobs are in range.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.TextSignalEnabled && c.EmbedServiceURL == "" {
		errs = append(errs, ErrMissingEmbedServiceURL)
	}
	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		errs = append(errs, ErrInvalidMinMatchScore)
	}
	if c.CandidatePoolSize <= 0 {
		errs = append(errs, ErrInvalidPoolSize)
	}
	if c.TopK <= 0 {
		errs = append(errs, ErrInvalidTopK)
	}
	if c.MaxGeoRadiusKM <= 0 {
		errs = append(errs, ErrInvalidGeoRadius)
	}
	if c.TimeDecayDays <= 0 {
		errs = append(errs, ErrInvalidTimeDecay)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// Credentials embedded in URLs are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskedURL(c.DatabaseURL),
		"redis_url":             maskedURL(c.RedisURL),
		"embed_service_url":     c.EmbedServiceURL,
		"embed_timeout_seconds": fmt.Sprintf("%d", c.EmbedTimeoutSeconds),
		"text_signal_enabled":   fmt.Sprintf("%t", c.TextSignalEnabled),
		"image_signal_enabled":  fmt.Sprintf("%t", c.ImageSignalEnabled),
		"geo_prefilter_enabled": fmt.Sprintf("%t", c.GeoPrefilterEnabled),
		"candidate_pool_size":   fmt.Sprintf("%d", c.CandidatePoolSize),
		"max_geo_radius_km":     fmt.Sprintf("%g", c.MaxGeoRadiusKM),
		"time_decay_days":       fmt.Sprintf("%g", c.TimeDecayDays),
		"min_match_score":       fmt.Sprintf("%g", c.MinMatchScore),
		"top_k":                 fmt.Sprintf("%d", c.TopK),
		"geo_fuzz_radius_m":     fmt.Sprintf("%g", c.GeoFuzzRadiusM),
		"calibration_file":      c.CalibrationFile,
		"job_timeout_seconds":   fmt.Sprintf("%d", c.JobTimeoutSeconds),
		"job_max_attempts":      fmt.Sprintf("%d", c.JobMaxAttempts),
		"debounce_seconds":      fmt.Sprintf("%d", c.DebounceSeconds),
		"match_retention_days":  fmt.Sprintf("%d", c.MatchRetentionDays),
	}
}

// maskedURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskedURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}
