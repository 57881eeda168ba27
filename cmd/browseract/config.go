package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/browseract/internal/sites"
)

// Driver backend names.
const (
	driverPlaywright = "playwright"
	driverRod        = "rod"
	driverStatic     = "static"
)

// Config holds the browseract settings.
// Priority: flags > env vars > settings file > defaults.
type Config struct {
	Driver                string           `json:"driver" yaml:"driver"`
	Headless              bool             `json:"headless" yaml:"headless"`
	SlowMoMS              int              `json:"slowmo_ms" yaml:"slowmo_ms"`
	InstallBrowsers       bool             `json:"install_browsers" yaml:"install_browsers"`
	RequestTimeoutSeconds int              `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	AllowedDomains        []string         `json:"allowed_domains" yaml:"allowed_domains"`
	Retries               int              `json:"retries" yaml:"retries"`
	ArtifactsDir          string           `json:"artifacts_dir" yaml:"artifacts_dir"`
	ReportDir             string           `json:"report_dir" yaml:"report_dir"`
	LogLevel              string           `json:"log_level" yaml:"log_level"`
	LogFormat             string           `json:"log_format" yaml:"log_format"`
	Site                  string           `json:"site" yaml:"site"`
	Demo                  sites.DemoConfig `json:"demo" yaml:"demo"`
}

func defaultConfig() Config {
	return Config{
		Driver:                driverPlaywright,
		Headless:              true,
		RequestTimeoutSeconds: 30,
		Retries:               2,
		ArtifactsDir:          "artifacts",
		ReportDir:             "reports",
		LogLevel:              "info",
		LogFormat:             "text",
		Site:                  "demo",
		Demo:                  sites.DefaultDemoConfig(),
	}
}

func browseractDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browseract"
	}
	return filepath.Join(home, ".browseract")
}

func settingsPath() string {
	return filepath.Join(browseractDir(), "settings.json")
}

// loadConfig layers defaults, the settings file and the environment. An
// explicit path must exist; the default settings file is optional.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeConfig(path, data, &cfg); err != nil {
			return cfg, err
		}
	case explicit || !os.IsNotExist(err):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("BA_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := getenv("BA_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BA_HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	if v := getenv("BA_REQUEST_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BA_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		cfg.RequestTimeoutSeconds = n
	}
	if v := getenv("BA_ALLOWED_DOMAINS"); v != "" {
		cfg.AllowedDomains = parseDomains(v)
	}
	if v := getenv("BA_ARTIFACTS_DIR"); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := getenv("BA_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
	if v := getenv("BA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("BA_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	return nil
}

// parseDomains accepts a JSON list or a comma separated string.
func parseDomains(v string) []string {
	v = strings.TrimSpace(v)
	var list []string
	if strings.HasPrefix(v, "[") && json.Unmarshal([]byte(v), &list) == nil {
		return list
	}
	out := []string{}
	for _, d := range strings.Split(v, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (c Config) validate() error {
	switch c.Driver {
	case driverPlaywright, driverRod, driverStatic:
	default:
		return fmt.Errorf("unknown driver %q (want %s, %s or %s)", c.Driver, driverPlaywright, driverRod, driverStatic)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	return nil
}
