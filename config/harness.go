package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HarnessConfig holds the client-side settings used to reach a server
// under test.
type HarnessConfig struct {
	BaseURL          string        `yaml:"base_url"`
	WSPath           string        `yaml:"ws_path"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
	NegativeWait     time.Duration `yaml:"negative_wait"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	AwaitWelcome     bool          `yaml:"await_welcome"`
}

// DefaultHarnessConfig returns the harness defaults.
func DefaultHarnessConfig() *HarnessConfig {
	return &HarnessConfig{
		BaseURL:          "http://localhost:8081",
		WSPath:           "/api/ws",
		HandshakeTimeout: 5 * time.Second,
		WaitTimeout:      10 * time.Second,
		NegativeWait:     3 * time.Second,
		RequestTimeout:   10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// HarnessConfigFromEnv applies HARNESS_* overrides on top of cfg.
func HarnessConfigFromEnv(cfg *HarnessConfig) *HarnessConfig {
	if v := os.Getenv("HARNESS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("HARNESS_WS_PATH"); v != "" {
		cfg.WSPath = v
	}
	envDuration("HARNESS_HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout)
	envDuration("HARNESS_WAIT_TIMEOUT", &cfg.WaitTimeout)
	envDuration("HARNESS_NEGATIVE_WAIT", &cfg.NegativeWait)
	envDuration("HARNESS_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	envDuration("HARNESS_WRITE_TIMEOUT", &cfg.WriteTimeout)
	envBool("HARNESS_AWAIT_WELCOME", &cfg.AwaitWelcome)
	return cfg
}

// LoadHarnessConfig reads defaults, then the YAML file at path (if
// non-empty), then the environment.
func LoadHarnessConfig(path string) (*HarnessConfig, error) {
	cfg := DefaultHarnessConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return HarnessConfigFromEnv(cfg), nil
}

// LoadSocketConfig reads defaults, then the YAML file at path (if
// non-empty), then the environment.
func LoadSocketConfig(path string) (*SocketConfig, error) {
	cfg := DefaultConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return SocketConfigFromEnv(cfg), nil
}

func loadYAML(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// APIBase returns the REST root, e.g. http://host:8081/api.
func (c *HarnessConfig) APIBase() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api"
}

// WSURL derives the push endpoint from BaseURL and WSPath, switching the
// scheme to ws or wss.
func (c *HarnessConfig) WSURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.WSPath
	return u.String(), nil
}
