// Package config loads storefront settings from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL       = "https://exe-be.onrender.com"
	defaultAPITimeout   = 8 * time.Second
	defaultDBPath       = "./data/storefront.db"
	defaultStaticPath   = "./static"
	defaultPort         = 8080
	defaultReturnURL    = "https://exe-fe.onrender.com/success"
	defaultCancelURL    = "https://exe-fe.onrender.com/fail"
	defaultDescription  = "Storefront order"
	defaultLogLevel     = "info"
	defaultNoticeBuffer = 32
	defaultSessionTTL   = 30 * time.Minute
	defaultMaxSessions  = 1024
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
}

// APIConfig points at the remote storefront API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig locates the local durable mirror.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// ServerConfig configures the backend-for-frontend.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	StaticPath   string        `yaml:"static_path"`
	NoticeBuffer int           `yaml:"notice_buffer"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	MaxSessions  int           `yaml:"max_sessions"`
}

// CheckoutConfig holds the URLs the payment session sends the user back to.
type CheckoutConfig struct {
	ReturnURL   string `yaml:"return_url"`
	CancelURL   string `yaml:"cancel_url"`
	Description string `yaml:"description"`
}

// AuthConfig holds the key the remote API signs session tokens with. Without
// it tokens are decoded but not verified, and admin routes stay closed.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API:     APIConfig{BaseURL: defaultAPIURL, Timeout: defaultAPITimeout},
		Storage: StorageConfig{DBPath: defaultDBPath},
		Server: ServerConfig{
			Port:         defaultPort,
			StaticPath:   defaultStaticPath,
			NoticeBuffer: defaultNoticeBuffer,
			SessionTTL:   defaultSessionTTL,
			MaxSessions:  defaultMaxSessions,
		},
		Checkout: CheckoutConfig{
			ReturnURL:   defaultReturnURL,
			CancelURL:   defaultCancelURL,
			Description: defaultDescription,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// Load builds the configuration. path may be empty; a missing file at a
// non-empty path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	overrides := []struct {
		key string
		dst *string
	}{
		{"STOREFRONT_API_URL", &cfg.API.BaseURL},
		{"DB_PATH", &cfg.Storage.DBPath},
		{"STATIC_PATH", &cfg.Server.StaticPath},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"STOREFRONT_RETURN_URL", &cfg.Checkout.ReturnURL},
		{"STOREFRONT_CANCEL_URL", &cfg.Checkout.CancelURL},
		{"STOREFRONT_TOKEN_SECRET", &cfg.Auth.TokenSecret},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.key)); v != "" {
			*o.dst = v
		}
	}

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(getenv("STOREFRONT_API_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: STOREFRONT_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if err := checkURL("api.base_url", c.API.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("checkout.return_url", c.Checkout.ReturnURL); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("checkout.cancel_url", c.Checkout.CancelURL); err != nil {
		errs = append(errs, err)
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("config: api.timeout must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: server.port %d out of range", c.Server.Port))
	}
	if c.Server.SessionTTL < 0 {
		errs = append(errs, errors.New("config: server.session_ttl must not be negative"))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, errors.New("config: server.max_sessions must not be negative"))
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		errs = append(errs, errors.New("config: storage.db_path is required"))
	}
	return errors.Join(errs...)
}

func checkURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: %s must be an absolute URL, got %q", name, raw)
	}
	return nil
}
