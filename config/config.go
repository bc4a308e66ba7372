// Package config provides configuration management for the studio-ops tool.
// It supports loading configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marloweandco/studio-ops/pkg/match"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultTimeout      = 2 * time.Minute
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".studio-ops"
	DefaultConfigFile   = "config.yaml"
	DefaultRedisAddr    = "localhost:6379"
	DefaultConcurrency  = 4
	DefaultBatchSize    = 100
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port (default: 5432).
	Port int `yaml:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty"`

	// User is the database username.
	User string `yaml:"user,omitempty"`

	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`

	// SSLRootCert is the path to the SSL root certificate file.
	// Defaults to ~/.postgresql/root.crt if not specified and sslmode requires verification.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`
}

// ConnectionString returns the PostgreSQL connection string.
// Returns empty string if the database is not configured.
func (c *DatabaseConfig) ConnectionString() string {
	if c == nil || c.Host == "" || c.Database == "" || c.User == "" {
		return ""
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, port, c.Database, c.User, sslmode)

	// Add sslrootcert if SSL verification is required.
	if sslmode == "verify-ca" || sslmode == "verify-full" {
		sslrootcert := c.SSLRootCert
		if sslrootcert == "" {
			// Default to ~/.postgresql/root.crt
			if home, err := os.UserHomeDir(); err == nil {
				defaultCert := filepath.Join(home, ".postgresql", "root.crt")
				if _, err := os.Stat(defaultCert); err == nil {
					sslrootcert = defaultCert
				}
			}
		}
		if sslrootcert != "" {
			connStr += fmt.Sprintf(" sslrootcert=%s", sslrootcert)
		}
	}

	return connStr
}

// IsConfigured returns true if the database is configured with required fields.
func (c *DatabaseConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// RedisConfig holds the work-queue connection settings.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr,omitempty"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty"`
}

// GetAddr returns the Redis address, defaulting to localhost.
func (c *RedisConfig) GetAddr() string {
	if c == nil || c.Addr == "" {
		return DefaultRedisAddr
	}
	return c.Addr
}

// MatcherConfig holds match signal weights. Zero values fall back to the
// standard weights.
type MatcherConfig struct {
	ShortCodeWeight float64 `yaml:"short_code_weight,omitempty"`
	ContactWeight   float64 `yaml:"contact_weight,omitempty"`
	DomainWeight    float64 `yaml:"domain_weight,omitempty"`
	NameWeightMax   float64 `yaml:"name_weight_max,omitempty"`
	Floor           float64 `yaml:"floor,omitempty"`
}

// Weights converts the configuration to matcher weights, filling unset
// values with the defaults. The confidence cap is not configurable.
func (c *MatcherConfig) Weights() match.Weights {
	w := match.DefaultWeights()
	if c == nil {
		return w
	}
	if c.ShortCodeWeight > 0 {
		w.ShortCode = c.ShortCodeWeight
	}
	if c.ContactWeight > 0 {
		w.Contact = c.ContactWeight
	}
	if c.DomainWeight > 0 {
		w.Domain = c.DomainWeight
	}
	if c.NameWeightMax > 0 {
		w.NameMax = c.NameWeightMax
	}
	if c.Floor > 0 {
		w.Floor = c.Floor
	}
	return w
}

// SuggestConfig holds suggestion generation settings.
type SuggestConfig struct {
	// EligibilityFloor is the minimum candidate confidence that can drive a
	// suggestion. Zero falls back to the standard floor.
	EligibilityFloor float64 `yaml:"eligibility_floor,omitempty"`
}

// LearnerConfig holds pattern learner settings.
type LearnerConfig struct {
	// Alpha is the weight adjustment step. Zero falls back to the default.
	Alpha float64 `yaml:"alpha,omitempty"`

	// DenialThreshold is how many same-note denials synthesize a candidate
	// pattern. Zero falls back to the default.
	DenialThreshold int `yaml:"denial_threshold,omitempty"`
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `yaml:"concurrency,omitempty"`

	// BatchSize is the maximum emails one batch run picks up.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// GetConcurrency returns the configured concurrency or the default.
func (c *PipelineConfig) GetConcurrency() int {
	if c == nil || c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// GetBatchSize returns the configured batch size or the default.
func (c *PipelineConfig) GetBatchSize() int {
	if c == nil || c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// Config holds the studio-ops configuration settings.
type Config struct {
	// Timeout is the default timeout for commands.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Actor is the identity recorded on manual edits and reviews.
	// Defaults to the OS username when empty.
	Actor string `yaml:"actor,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// Database holds PostgreSQL connection settings.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Redis holds work-queue connection settings.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Matcher holds match signal weights.
	Matcher *MatcherConfig `yaml:"matcher,omitempty"`

	// Suggest holds suggestion generation settings.
	Suggest *SuggestConfig `yaml:"suggest,omitempty"`

	// Learner holds pattern learner settings.
	Learner *LearnerConfig `yaml:"learner,omitempty"`

	// Pipeline holds batch processing settings.
	Pipeline *PipelineConfig `yaml:"pipeline,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $STUDIO_OPS_CONFIG_DIR if set, otherwise ~/.studio-ops
func ConfigDir() (string, error) {
	if dir := os.Getenv("STUDIO_OPS_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.studio-ops/config.yaml or $STUDIO_OPS_CONFIG_DIR/config.yaml)
// 3. Environment variables (STUDIO_OPS_*)
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// We need a temp struct for unmarshaling duration as string.
	type configFile struct {
		Timeout      string          `yaml:"timeout"`
		OutputFormat OutputFormat    `yaml:"output_format"`
		Actor        string          `yaml:"actor"`
		Debug        bool            `yaml:"debug"`
		Database     *DatabaseConfig `yaml:"database"`
		Redis        *RedisConfig    `yaml:"redis"`
		Matcher      *MatcherConfig  `yaml:"matcher"`
		Suggest      *SuggestConfig  `yaml:"suggest"`
		Learner      *LearnerConfig  `yaml:"learner"`
		Pipeline     *PipelineConfig `yaml:"pipeline"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.Actor != "" {
		cfg.Actor = fileCfg.Actor
	}
	if fileCfg.Database != nil {
		cfg.Database = fileCfg.Database
	}
	if fileCfg.Redis != nil {
		cfg.Redis = fileCfg.Redis
	}
	if fileCfg.Matcher != nil {
		cfg.Matcher = fileCfg.Matcher
	}
	if fileCfg.Suggest != nil {
		cfg.Suggest = fileCfg.Suggest
	}
	if fileCfg.Learner != nil {
		cfg.Learner = fileCfg.Learner
	}
	if fileCfg.Pipeline != nil {
		cfg.Pipeline = fileCfg.Pipeline
	}
	cfg.Debug = fileCfg.Debug

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("STUDIO_OPS_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("STUDIO_OPS_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("STUDIO_OPS_ACTOR"); v != "" {
		cfg.Actor = v
	}

	if v := os.Getenv("STUDIO_OPS_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("STUDIO_OPS_REDIS_ADDR"); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &RedisConfig{}
		}
		cfg.Redis.Addr = v
	}

	loadDatabaseFromEnv(cfg)
}

// loadDatabaseFromEnv overlays database environment variables.
func loadDatabaseFromEnv(cfg *Config) {
	host := os.Getenv("STUDIO_OPS_DB_HOST")
	database := os.Getenv("STUDIO_OPS_DB_NAME")
	user := os.Getenv("STUDIO_OPS_DB_USER")

	if host == "" && database == "" && user == "" {
		return // No env vars set.
	}

	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{}
	}

	if host != "" {
		cfg.Database.Host = host
	}
	if database != "" {
		cfg.Database.Database = database
	}
	if user != "" {
		cfg.Database.User = user
	}
	if v := os.Getenv("STUDIO_OPS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("STUDIO_OPS_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Matcher != nil {
		w := c.Matcher.Weights()
		for name, v := range map[string]float64{
			"short_code_weight": w.ShortCode,
			"contact_weight":    w.Contact,
			"domain_weight":     w.Domain,
			"name_weight_max":   w.NameMax,
			"floor":             w.Floor,
		} {
			if v <= 0 || v >= 1 {
				return fmt.Errorf("matcher %s must be in (0, 1)", name)
			}
		}
	}

	if c.Suggest != nil && (c.Suggest.EligibilityFloor < 0 || c.Suggest.EligibilityFloor >= 1) {
		return fmt.Errorf("suggest eligibility_floor must be in [0, 1)")
	}

	if c.Learner != nil {
		if c.Learner.Alpha < 0 || c.Learner.Alpha >= 1 {
			return fmt.Errorf("learner alpha must be in [0, 1)")
		}
		if c.Learner.DenialThreshold < 0 {
			return fmt.Errorf("learner denial_threshold must not be negative")
		}
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *Config) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	// Convert to YAML-friendly format with duration as string.
	type configFile struct {
		Timeout      string          `yaml:"timeout"`
		OutputFormat OutputFormat    `yaml:"output_format"`
		Actor        string          `yaml:"actor,omitempty"`
		Debug        bool            `yaml:"debug,omitempty"`
		Database     *DatabaseConfig `yaml:"database,omitempty"`
		Redis        *RedisConfig    `yaml:"redis,omitempty"`
		Matcher      *MatcherConfig  `yaml:"matcher,omitempty"`
		Suggest      *SuggestConfig  `yaml:"suggest,omitempty"`
		Learner      *LearnerConfig  `yaml:"learner,omitempty"`
		Pipeline     *PipelineConfig `yaml:"pipeline,omitempty"`
	}

	fileCfg := configFile{
		Timeout:      cfg.Timeout.String(),
		OutputFormat: cfg.OutputFormat,
		Actor:        cfg.Actor,
		Debug:        cfg.Debug,
		Database:     cfg.Database,
		Redis:        cfg.Redis,
		Matcher:      cfg.Matcher,
		Suggest:      cfg.Suggest,
		Learner:      cfg.Learner,
		Pipeline:     cfg.Pipeline,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// GetActor returns the configured actor identity, falling back to the OS
// username.
func (c *Config) GetActor() string {
	if c.Actor != "" {
		return c.Actor
	}
	return os.Getenv("USER")
}
