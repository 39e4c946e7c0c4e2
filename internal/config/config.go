package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Printing PrintingConfig `yaml:"printing"`
	Devices  []DeviceConfig `yaml:"devices"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Auth     AuthConfig     `yaml:"auth"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PrintingConfig struct {
	InitialDelay   time.Duration `yaml:"initial_delay"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxPolls       int           `yaml:"max_polls"`
	DetectScale    float64       `yaml:"detect_scale"`
	WhiteTolerance int           `yaml:"white_tolerance"`
	DefaultPaper   string        `yaml:"default_paper"`
	ImageDPI       float64       `yaml:"image_dpi"`
	EventBuffer    int           `yaml:"event_buffer"`
}

// DeviceConfig describes one virtual print device. Margins are the hardware
// non-printable margins in millimetres.
type DeviceConfig struct {
	Name         string        `yaml:"name"`
	DPI          int           `yaml:"dpi"`
	PaperSizes   []string      `yaml:"paper_sizes"`
	DefaultPaper string        `yaml:"default_paper"`
	Color        bool          `yaml:"color"`
	Duplex       bool          `yaml:"duplex"`
	MaxCopies    int           `yaml:"max_copies"`
	MarginLeft   float64       `yaml:"margin_left_mm"`
	MarginTop    float64       `yaml:"margin_top_mm"`
	MarginRight  float64       `yaml:"margin_right_mm"`
	MarginBottom float64       `yaml:"margin_bottom_mm"`
	Online       *bool         `yaml:"online"`
	PageTime     time.Duration `yaml:"page_time"`
	OutputDir    string        `yaml:"output_dir"`
}

func (d DeviceConfig) IsOnline() bool {
	return d.Online == nil || *d.Online
}

type WebhookConfig struct {
	Targets     []WebhookTarget `yaml:"targets"`
	Timeout     time.Duration   `yaml:"timeout"`
	MaxRetries  int             `yaml:"max_retries"`
	WorkerCount int             `yaml:"worker_count"`
	QueueSize   int             `yaml:"queue_size"`
}

type WebhookTarget struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassword string        `yaml:"admin_password_hash"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

// Enabled reports whether the API requires bearer tokens.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// ArchiveConfig controls how finished job history is moved out of the main
// database. Days of zero disables archiving.
type ArchiveConfig struct {
	Path     string        `yaml:"path"`
	Days     int           `yaml:"days"`
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/pagespool.db",
		},
		Printing: PrintingConfig{
			InitialDelay:   2 * time.Second,
			PollInterval:   2 * time.Second,
			MaxPolls:       150,
			DetectScale:    1,
			WhiteTolerance: 0,
			DefaultPaper:   "A4",
			ImageDPI:       150,
			EventBuffer:    256,
		},
		Webhooks: WebhookConfig{
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			WorkerCount: 4,
			QueueSize:   1000,
		},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
		Archive: ArchiveConfig{
			Path:     "./data/archives",
			Days:     30,
			Interval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration with one virtual device.
func Default() *Config {
	cfg := defaults()
	cfg.Devices = []DeviceConfig{{
		Name:         "Virtual Printer",
		DPI:          300,
		Color:        true,
		Duplex:       true,
		MaxCopies:    99,
		MarginLeft:   4.2,
		MarginTop:    4.2,
		MarginRight:  4.2,
		MarginBottom: 4.2,
	}}
	return cfg
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv returns the built-in configuration with PAGESPOOL_* overrides.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("PAGESPOOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PAGESPOOL_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PAGESPOOL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("PAGESPOOL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("PAGESPOOL_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Printing.PollInterval = d
		}
	}

	if v := os.Getenv("PAGESPOOL_MAX_POLLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Printing.MaxPolls = n
		}
	}

	if v := os.Getenv("PAGESPOOL_ARCHIVE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Archive.Days = n
		}
	}

	if v := os.Getenv("PAGESPOOL_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}

	if v := os.Getenv("PAGESPOOL_ADMIN_PASSWORD_HASH"); v != "" {
		c.Auth.AdminPassword = v
	}
}

func (c *Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Printing.InitialDelay < 0 {
		return fmt.Errorf("initial delay must be non-negative")
	}

	if c.Printing.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Printing.MaxPolls < 1 {
		return fmt.Errorf("max polls must be at least 1")
	}

	if c.Printing.DetectScale <= 0 {
		return fmt.Errorf("detect scale must be positive")
	}

	if c.Printing.WhiteTolerance < 0 || c.Printing.WhiteTolerance > 255 {
		return fmt.Errorf("white tolerance must be between 0 and 255, got %d", c.Printing.WhiteTolerance)
	}

	if c.Printing.ImageDPI <= 0 {
		return fmt.Errorf("image dpi must be positive")
	}

	if err := c.validateDevices(); err != nil {
		return err
	}

	for i, t := range c.Webhooks.Targets {
		if t.URL == "" {
			return fmt.Errorf("webhook target %d: url is required", i)
		}
		for _, ev := range t.Events {
			if !validEvents[ev] {
				return fmt.Errorf("webhook target %d: unknown event %q", i, ev)
			}
		}
	}

	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhook max retries must be non-negative")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	if c.Archive.Days < 0 {
		return fmt.Errorf("archive days must be non-negative")
	}

	if c.Archive.Days > 0 && c.Archive.Interval <= 0 {
		return fmt.Errorf("archive interval must be positive")
	}

	if c.Auth.Enabled() && c.Auth.AdminPassword == "" {
		return fmt.Errorf("auth admin_password_hash is required when jwt_secret is set")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"text":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, console)", c.Logging.Format)
	}

	return nil
}

var validEvents = map[string]bool{
	"job_completed":          true,
	"job_failed":             true,
	"printer_status_changed": true,
}

func (c *Config) validateDevices() error {
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("device %q defined twice", d.Name)
		}
		seen[d.Name] = true

		if d.DPI < 0 {
			return fmt.Errorf("device %q: dpi must be non-negative", d.Name)
		}
		if d.MaxCopies < 0 {
			return fmt.Errorf("device %q: max copies must be non-negative", d.Name)
		}
		for _, m := range []float64{d.MarginLeft, d.MarginTop, d.MarginRight, d.MarginBottom} {
			if m < 0 {
				return fmt.Errorf("device %q: margins must be non-negative", d.Name)
			}
		}
	}
	return nil
}
