package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.Debug {
		t.Error("Debug should be false by default")
	}
	if cfg.Database != nil {
		t.Error("Database should be nil by default")
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"invalid", false},
		{"", false},
		{"JSON", false}, // Case sensitive
		{"xml", false},
	}

	for _, tc := range tests {
		if got := tc.format.IsValid(); got != tc.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tc.format, got, tc.valid)
		}
	}
}

// TestDatabaseConfig_ConnectionString verifies connection string generation.
func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  *DatabaseConfig
		want string
	}{
		{
			name: "fully configured",
			cfg: &DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				Database: "studio",
				User:     "ops",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 dbname=studio user=ops sslmode=disable",
		},
		{
			name: "defaults port and sslmode",
			cfg: &DatabaseConfig{
				Host:     "localhost",
				Database: "studio",
				User:     "ops",
			},
			want: "host=localhost port=5432 dbname=studio user=ops sslmode=require",
		},
		{
			name: "missing host",
			cfg:  &DatabaseConfig{Database: "studio", User: "ops"},
			want: "",
		},
		{
			name: "nil config",
			cfg:  nil,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.ConnectionString(); got != tc.want {
				t.Errorf("ConnectionString() = %q, want %q", got, tc.want)
			}
		})
	}
}

// TestDatabaseConfig_IsConfigured verifies configuration detection.
func TestDatabaseConfig_IsConfigured(t *testing.T) {
	var nilCfg *DatabaseConfig
	if nilCfg.IsConfigured() {
		t.Error("nil config should not be configured")
	}

	cfg := &DatabaseConfig{Host: "h", Database: "d", User: "u"}
	if !cfg.IsConfigured() {
		t.Error("complete config should be configured")
	}

	cfg.User = ""
	if cfg.IsConfigured() {
		t.Error("config without user should not be configured")
	}
}

// TestMatcherConfig_Weights verifies weight overlay onto defaults.
func TestMatcherConfig_Weights(t *testing.T) {
	var nilCfg *MatcherConfig
	w := nilCfg.Weights()
	if w.ShortCode != 0.9 {
		t.Errorf("default ShortCode = %v, want 0.9", w.ShortCode)
	}

	cfg := &MatcherConfig{ShortCodeWeight: 0.95, Floor: 0.2}
	w = cfg.Weights()
	if w.ShortCode != 0.95 {
		t.Errorf("ShortCode = %v, want 0.95", w.ShortCode)
	}
	if w.Floor != 0.2 {
		t.Errorf("Floor = %v, want 0.2", w.Floor)
	}
	if w.Contact != 0.8 {
		t.Errorf("Contact should keep default, got %v", w.Contact)
	}
	if w.Cap != 0.99 {
		t.Errorf("Cap should not be configurable, got %v", w.Cap)
	}
}

// TestValidate verifies configuration validation.
func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero timeout should fail validation")
	}
	cfg.Timeout = DefaultTimeout

	cfg.OutputFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("invalid output format should fail validation")
	}
	cfg.OutputFormat = OutputFormatText

	cfg.Matcher = &MatcherConfig{ShortCodeWeight: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Error("out-of-range matcher weight should fail validation")
	}
	cfg.Matcher = nil

	cfg.Learner = &LearnerConfig{Alpha: -0.1}
	if err := cfg.Validate(); err == nil {
		t.Error("negative learner alpha should fail validation")
	}
}

// TestLoadConfigFromFile verifies YAML file loading.
func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDIO_OPS_CONFIG_DIR", dir)

	content := `timeout: 30s
output_format: json
actor: mette
database:
  host: localhost
  database: studio
  user: ops
  sslmode: disable
matcher:
  floor: 0.25
learner:
  alpha: 0.2
  denial_threshold: 5
pipeline:
  concurrency: 8
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if cfg.Actor != "mette" {
		t.Errorf("Actor = %v, want mette", cfg.Actor)
	}
	if !cfg.Database.IsConfigured() {
		t.Error("Database should be configured")
	}
	if cfg.Matcher.Weights().Floor != 0.25 {
		t.Errorf("matcher floor = %v, want 0.25", cfg.Matcher.Weights().Floor)
	}
	if cfg.Learner.Alpha != 0.2 {
		t.Errorf("learner alpha = %v, want 0.2", cfg.Learner.Alpha)
	}
	if cfg.Pipeline.GetConcurrency() != 8 {
		t.Errorf("concurrency = %v, want 8", cfg.Pipeline.GetConcurrency())
	}
}

// TestLoadConfigEnvOverrides verifies env vars override file values.
func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDIO_OPS_CONFIG_DIR", dir)

	content := "output_format: yaml\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STUDIO_OPS_OUTPUT_FORMAT", "json")
	t.Setenv("STUDIO_OPS_DB_HOST", "envhost")
	t.Setenv("STUDIO_OPS_DB_NAME", "envdb")
	t.Setenv("STUDIO_OPS_DB_USER", "envuser")
	t.Setenv("STUDIO_OPS_REDIS_ADDR", "cache:6380")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if cfg.Database == nil || cfg.Database.Host != "envhost" {
		t.Errorf("Database.Host not taken from env: %+v", cfg.Database)
	}
	if cfg.Redis.GetAddr() != "cache:6380" {
		t.Errorf("Redis addr = %v, want cache:6380", cfg.Redis.GetAddr())
	}
}

// TestSaveConfigRoundTrip verifies save-then-load preserves values.
func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDIO_OPS_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	cfg.Actor = "jens"
	cfg.Suggest = &SuggestConfig{EligibilityFloor: 0.65}
	cfg.Redis = &RedisConfig{Addr: "localhost:6390", DB: 2}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.Actor != "jens" {
		t.Errorf("Actor = %v, want jens", loaded.Actor)
	}
	if loaded.Suggest == nil || loaded.Suggest.EligibilityFloor != 0.65 {
		t.Errorf("Suggest not preserved: %+v", loaded.Suggest)
	}
	if loaded.Redis == nil || loaded.Redis.DB != 2 {
		t.Errorf("Redis not preserved: %+v", loaded.Redis)
	}
}

// TestExpandPath verifies ~ expansion.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandPath("~/certs")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "certs") {
		t.Errorf("ExpandPath(~/certs) = %v", got)
	}

	got, err = ExpandPath("/abs/path")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %v", got)
	}

	got, err = ExpandPath("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("ExpandPath(\"\") = %v", got)
	}
}
