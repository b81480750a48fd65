package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the client configuration file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	BackendURL        string `yaml:"backendURL"`
	LogLevel          string `yaml:"logLevel"`
	RequestTimeout    string `yaml:"requestTimeout"`
	TokenFile         string `yaml:"tokenFile"`
	UploadConcurrency int    `yaml:"uploadConcurrency"`
	WelcomeDelay      string `yaml:"welcomeDelay"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error; defaults and environment overrides still apply so the client
// runs with nothing but EDUHUB_BACKEND_URL set.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		LogLevel:          "info",
		RequestTimeout:    "10s",
		UploadConcurrency: 4,
		WelcomeDelay:      "1s",
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("EDUHUB_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("EDUHUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EDUHUB_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("EDUHUB_TOKEN_FILE"); v != "" {
		cfg.TokenFile = v
	}
	if v := os.Getenv("EDUHUB_UPLOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadConcurrency = n
		}
	}
	if v := os.Getenv("EDUHUB_WELCOME_DELAY"); v != "" {
		cfg.WelcomeDelay = v
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultTokenFile()
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.BackendURL == "" {
		return errors.New("config: backendURL is required (set in config.yaml or EDUHUB_BACKEND_URL)")
	}
	if cfg.UploadConcurrency < 1 {
		return errors.New("config: uploadConcurrency must be >= 1")
	}
	if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
		return fmt.Errorf("config: invalid requestTimeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.WelcomeDelay); err != nil {
		return fmt.Errorf("config: invalid welcomeDelay: %w", err)
	}
	return nil
}

// ParseRequestTimeout parses the per-request timeout duration string.
func ParseRequestTimeout(cfg FileConfig) (time.Duration, error) {
	dur, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid requestTimeout duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("requestTimeout must be positive")
	}
	return dur, nil
}

// ParseWelcomeDelay parses the delay before the post-login welcome
// notification and navigation fire.
func ParseWelcomeDelay(cfg FileConfig) (time.Duration, error) {
	dur, err := time.ParseDuration(cfg.WelcomeDelay)
	if err != nil {
		return 0, fmt.Errorf("invalid welcomeDelay duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("welcomeDelay must be >= 0")
	}
	return dur, nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".eduhub-token"
	}
	return filepath.Join(dir, "eduhub", "token")
}
