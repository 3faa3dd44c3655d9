package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port string `yaml:"port"`

	GCPProjectID string `yaml:"gcp_project"`
	GCPLocation  string `yaml:"gcp_location"`
	ModelName    string `yaml:"model_name"`
	UseMockLLM   bool   `yaml:"use_mock_llm"` // true = use mock even on GCP

	StorageBackend string `yaml:"storage_backend"` // "memory", "sqlite" or "firestore"
	SQLitePath     string `yaml:"sqlite_path"`

	MediaBackend string `yaml:"media_backend"` // "memory" or "gcs"
	MediaBucket  string `yaml:"media_bucket"`

	UserID        string `yaml:"user_id"`
	DefaultMode   string `yaml:"default_mode"`
	ContextWindow int    `yaml:"context_window"`
	LinkPreviews  bool   `yaml:"link_previews"`

	Delivery  Delivery  `yaml:"delivery"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Delivery holds the simulated typing timings.
type Delivery struct {
	BaseDelayMin time.Duration `yaml:"base_delay_min"`
	BaseDelayMax time.Duration `yaml:"base_delay_max"`
	PerChar      time.Duration `yaml:"per_char"`
	Settle       time.Duration `yaml:"settle"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	File   string `yaml:"file"`   // optional rotated log file
	Quiet  bool   `yaml:"quiet"`  // file only, nothing on stdout
}

type Telemetry struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the local development configuration.
func Default() *Config {
	return &Config{
		Mode:           ModeLocal,
		Port:           "8080",
		GCPLocation:    "us-central1",
		ModelName:      "gemini-2.5-flash-lite",
		UseMockLLM:     true,
		StorageBackend: "memory",
		SQLitePath:     "ylol.db",
		MediaBackend:   "memory",
		UserID:         "local-user",
		DefaultMode:    "supportive",
		ContextWindow:  5,
		LinkPreviews:   false,
		Delivery: Delivery{
			BaseDelayMin: 800 * time.Millisecond,
			BaseDelayMax: 1500 * time.Millisecond,
			PerChar:      5 * time.Millisecond,
			Settle:       300 * time.Millisecond,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Telemetry: Telemetry{
			Dir: "logs",
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load builds the config: defaults, then the YAML file named by YLOL_CONFIG
// (if any), then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("YLOL_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	switch getEnv("YLOL_MODE", string(c.Mode)) {
	case "gcp":
		c.Mode = ModeGCP
	default:
		c.Mode = ModeLocal
	}

	c.Port = getEnv("YLOL_PORT", c.Port)

	c.GCPProjectID = getEnv("YLOL_GCP_PROJECT", c.GCPProjectID)
	c.GCPLocation = getEnv("YLOL_GCP_LOCATION", c.GCPLocation)
	c.ModelName = getEnv("YLOL_MODEL_NAME", c.ModelName)
	c.UseMockLLM = getBoolEnv("YLOL_USE_MOCK_LLM", c.UseMockLLM && c.Mode == ModeLocal)

	c.StorageBackend = getEnv("YLOL_STORAGE_BACKEND", c.StorageBackend)
	c.SQLitePath = getEnv("YLOL_SQLITE_PATH", c.SQLitePath)
	c.MediaBackend = getEnv("YLOL_MEDIA_BACKEND", c.MediaBackend)
	c.MediaBucket = getEnv("YLOL_MEDIA_BUCKET", c.MediaBucket)

	c.UserID = getEnv("YLOL_USER_ID", c.UserID)
	c.DefaultMode = getEnv("YLOL_DEFAULT_MODE", c.DefaultMode)
	c.ContextWindow = getIntEnv("YLOL_CONTEXT_WINDOW", c.ContextWindow)
	c.LinkPreviews = getBoolEnv("YLOL_LINK_PREVIEWS", c.LinkPreviews)

	c.Delivery.BaseDelayMin = getDurationEnv("YLOL_DELIVERY_BASE_MIN", c.Delivery.BaseDelayMin)
	c.Delivery.BaseDelayMax = getDurationEnv("YLOL_DELIVERY_BASE_MAX", c.Delivery.BaseDelayMax)
	c.Delivery.PerChar = getDurationEnv("YLOL_DELIVERY_PER_CHAR", c.Delivery.PerChar)
	c.Delivery.Settle = getDurationEnv("YLOL_DELIVERY_SETTLE", c.Delivery.Settle)

	c.Logging.Level = getEnv("YLOL_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("YLOL_LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("YLOL_LOG_FILE", c.Logging.File)

	c.Telemetry.Enabled = getBoolEnv("YLOL_TELEMETRY", c.Telemetry.Enabled)
	c.Telemetry.Dir = getEnv("YLOL_TELEMETRY_DIR", c.Telemetry.Dir)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	// Minimal validation in GCP mode
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("YLOL_GCP_PROJECT must be set in gcp mode"))
	}
	switch c.StorageBackend {
	case "memory", "sqlite":
	case "firestore":
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("firestore storage requires YLOL_GCP_PROJECT"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	switch c.MediaBackend {
	case "memory":
	case "gcs":
		if c.MediaBucket == "" {
			errs = append(errs, errors.New("gcs media backend requires YLOL_MEDIA_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown media backend %q", c.MediaBackend))
	}
	if !c.UseMockLLM && (c.GCPProjectID == "" || c.GCPLocation == "") {
		errs = append(errs, errors.New("gemini client requires YLOL_GCP_PROJECT and YLOL_GCP_LOCATION"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("user id must not be empty"))
	}
	if c.ContextWindow <= 0 {
		errs = append(errs, fmt.Errorf("context window must be positive, got %d", c.ContextWindow))
	}
	if c.Delivery.BaseDelayMin < 0 || c.Delivery.BaseDelayMax < c.Delivery.BaseDelayMin {
		errs = append(errs, fmt.Errorf("invalid delivery base delay range [%s, %s]",
			c.Delivery.BaseDelayMin, c.Delivery.BaseDelayMax))
	}
	if c.Delivery.PerChar < 0 || c.Delivery.Settle < 0 {
		errs = append(errs, errors.New("delivery delays must not be negative"))
	}

	return errors.Join(errs...)
}
