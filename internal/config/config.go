package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP status endpoint settings
	Telemetry  TelemetryConfig  `toml:"telemetry"`  // Flight simulator data source and polling settings
	Airport    AirportConfig    `toml:"airport"`    // Airport lookup settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Flight log persistence settings
	NATS       NATSConfig       `toml:"nats"`       // Event publishing settings
	WebSocket  WebSocketConfig  `toml:"websocket"`  // Live event stream settings
	Simulation SimulationConfig `toml:"simulation"` // Built-in simulated aircraft used instead of LittleNavmap
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the status endpoint
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Optional directory with dashboard files served at /
}

// TelemetryConfig contains the flight simulator source and poll scheduler settings
type TelemetryConfig struct {
	BaseURL              string   `toml:"base_url"`                 // LittleNavmap web API base URL (e.g., http://localhost:8965)
	Endpoints            []string `toml:"endpoints"`                // Candidate telemetry paths in preference order
	PollIntervalSecs     float64  `toml:"poll_interval_seconds"`    // Normal polling cadence
	FetchTimeoutSecs     float64  `toml:"fetch_timeout_seconds"`    // Timeout for a single endpoint request
	ErrorBackoffSecs     float64  `toml:"error_backoff_seconds"`    // Sleep after a failed cycle
	MaxConsecutiveErrors int      `toml:"max_consecutive_errors"`   // Failed cycles before the extended backoff
	ExtendedBackoffSecs  float64  `toml:"extended_backoff_seconds"` // Sleep once the failure threshold is reached
	ListenerTimeoutSecs  float64  `toml:"listener_timeout_seconds"` // Upper bound for one listener invocation
	SkipUnchanged        *bool    `toml:"skip_unchanged_samples"`   // Skip byte-identical samples (default true)
}

// AirportConfig contains airport lookup configuration
type AirportConfig struct {
	APIKey           string `toml:"api_key"`           // aviationstack access key; empty disables the fallback
	AviationstackURL string `toml:"aviationstack_url"` // Secondary source URL
	CacheSize        int    `toml:"cache_size"`        // Maximum cached airports
	CacheTTLSecs     int    `toml:"cache_ttl_seconds"` // How long an airport stays cached
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional log file, rotated by size
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// StorageConfig contains flight log persistence configuration
type StorageConfig struct {
	Enabled            bool   `toml:"enabled"`                 // Record phase changes, milestones and samples
	SQLitePath         string `toml:"sqlite_path"`             // Database file
	SampleIntervalSecs int    `toml:"sample_interval_seconds"` // Minimum spacing between stored samples
	MaxEventsInAPI     int    `toml:"max_events_in_api"`       // Upper bound for /api/v1/events
}

// NATSConfig contains event publishing configuration
type NATSConfig struct {
	URL           string `toml:"url"`            // Empty disables publishing
	SubjectPrefix string `toml:"subject_prefix"` // Events go to <prefix>.<event_type>
	Name          string `toml:"name"`           // Client connection name
}

// WebSocketConfig contains live event stream configuration
type WebSocketConfig struct {
	Enabled    bool `toml:"enabled"`     // Serve /ws
	QueueSize  int  `toml:"queue_size"`  // Async listener queue depth
	RawUpdates bool `toml:"raw_updates"` // Stream every accepted sample, not just phase/milestone events
}

// SimulationConfig contains the simulated aircraft settings
type SimulationConfig struct {
	Enabled     bool    `toml:"enabled"`      // Poll the simulated aircraft instead of the telemetry host
	Latitude    float64 `toml:"latitude"`     // Starting position
	Longitude   float64 `toml:"longitude"`    // Starting position
	ElevationFt float64 `toml:"elevation_ft"` // Ground elevation at the starting position
	HeadingDeg  float64 `toml:"heading_deg"`  // Initial heading
}

// Environment variables overriding file values
const (
	EnvBaseURL       = "LITTLENAVMAP_URL"
	EnvAirportAPIKey = "AIRPORT_API_KEY"
	EnvNATSURL       = "NAVWATCH_NATS_URL"
	EnvLogLevel      = "NAVWATCH_LOG_LEVEL"
)

// DefaultEndpoints are the telemetry paths tried when none are configured
var DefaultEndpoints = []string{"/api/aircraft", "/api/v1/flight", "/api/progress", "/api/flightplan"}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference.
// A .env file in the working directory is loaded first; it never overrides variables already set.
func LoadWithFallback(preferredPath string) (*Config, error) {
	_ = godotenv.Load()

	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnv overrides secrets and endpoints from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Telemetry.BaseURL = v
	}
	if v := os.Getenv(EnvAirportAPIKey); v != "" {
		c.Airport.APIKey = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate applies defaults and validates the configuration
func (c *Config) Validate() error {
	// Server
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	if err := c.ValidateTelemetry(); err != nil {
		return err
	}

	// Airport
	if c.Airport.CacheSize <= 0 {
		c.Airport.CacheSize = 128
	}
	if c.Airport.CacheTTLSecs <= 0 {
		c.Airport.CacheTTLSecs = 30
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	// Storage
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/navwatch.db"
	}
	if c.Storage.SampleIntervalSecs <= 0 {
		c.Storage.SampleIntervalSecs = 10
	}
	if c.Storage.MaxEventsInAPI <= 0 {
		c.Storage.MaxEventsInAPI = 500
	}

	// NATS
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "navwatch.telemetry"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "navwatch"
	}

	// WebSocket
	if c.WebSocket.QueueSize <= 0 {
		c.WebSocket.QueueSize = 64
	}

	// Simulation
	if c.Simulation.Latitude < -90 || c.Simulation.Latitude > 90 {
		return fmt.Errorf("invalid simulation latitude: %v", c.Simulation.Latitude)
	}
	if c.Simulation.Longitude < -180 || c.Simulation.Longitude > 180 {
		return fmt.Errorf("invalid simulation longitude: %v", c.Simulation.Longitude)
	}

	return nil
}

// ValidateTelemetry applies telemetry defaults and validates ranges
func (c *Config) ValidateTelemetry() error {
	t := &c.Telemetry

	if t.BaseURL == "" {
		t.BaseURL = "http://localhost:8965"
	}
	if !strings.HasPrefix(t.BaseURL, "http://") && !strings.HasPrefix(t.BaseURL, "https://") {
		return fmt.Errorf("telemetry base_url must be an http(s) URL: %s", t.BaseURL)
	}
	if len(t.Endpoints) == 0 {
		t.Endpoints = append([]string(nil), DefaultEndpoints...)
	}
	for _, ep := range t.Endpoints {
		if !strings.HasPrefix(ep, "/") {
			return fmt.Errorf("telemetry endpoint must start with '/': %s", ep)
		}
	}

	if t.PollIntervalSecs == 0 {
		t.PollIntervalSecs = 1.0
	}
	if t.FetchTimeoutSecs == 0 {
		t.FetchTimeoutSecs = 10
	}
	if t.ErrorBackoffSecs == 0 {
		t.ErrorBackoffSecs = 5
	}
	if t.MaxConsecutiveErrors == 0 {
		t.MaxConsecutiveErrors = 5
	}
	if t.ExtendedBackoffSecs == 0 {
		t.ExtendedBackoffSecs = 30
	}
	if t.ListenerTimeoutSecs == 0 {
		t.ListenerTimeoutSecs = 5
	}
	if t.SkipUnchanged == nil {
		skip := true
		t.SkipUnchanged = &skip
	}

	if t.PollIntervalSecs < 0.1 {
		return fmt.Errorf("telemetry poll_interval_seconds must be at least 0.1: %v", t.PollIntervalSecs)
	}
	if t.FetchTimeoutSecs < 0 || t.ErrorBackoffSecs < 0 || t.ExtendedBackoffSecs < 0 || t.ListenerTimeoutSecs < 0 {
		return fmt.Errorf("telemetry timeouts and backoffs must be positive")
	}
	if t.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("telemetry max_consecutive_errors must be positive: %d", t.MaxConsecutiveErrors)
	}

	return nil
}

// Seconds converts a fractional seconds setting to a duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
