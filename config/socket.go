package config

import (
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SocketConfig holds the reference notification server configuration.
type SocketConfig struct {
	Addr            string `yaml:"addr"`
	MaxConnections  int    `yaml:"max_connections"`
	PingInterval    int    `yaml:"ping_interval_seconds"`
	WriteTimeout    int    `yaml:"write_timeout_seconds"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
	ReadLimit       int64  `yaml:"read_limit"`
	SendBuffer      int    `yaml:"send_buffer"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTL        int    `yaml:"token_ttl_seconds"`
	Welcome         bool   `yaml:"welcome"`
	BcryptCost      int    `yaml:"bcrypt_cost"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		Addr:            ":8081",
		MaxConnections:  1000,
		PingInterval:    54,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		ReadLimit:       512,
		SendBuffer:      256,
		JWTSecret:       "change-me",
		TokenTTL:        86400,
		Welcome:         true,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// SocketConfigFromEnv applies NOTIFY_* overrides on top of cfg.
// Unparsable values keep the current setting.
func SocketConfigFromEnv(cfg *SocketConfig) *SocketConfig {
	if v := os.Getenv("NOTIFY_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("NOTIFY_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	envInt("NOTIFY_MAX_CONNECTIONS", &cfg.MaxConnections)
	envInt("NOTIFY_PING_INTERVAL", &cfg.PingInterval)
	envInt("NOTIFY_WRITE_TIMEOUT", &cfg.WriteTimeout)
	envInt("NOTIFY_SEND_BUFFER", &cfg.SendBuffer)
	envInt("NOTIFY_TOKEN_TTL", &cfg.TokenTTL)
	envInt("NOTIFY_BCRYPT_COST", &cfg.BcryptCost)
	envBool("NOTIFY_WELCOME", &cfg.Welcome)
	return cfg
}

// PingPeriod is the keepalive interval.
func (c *SocketConfig) PingPeriod() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// PongWait is how long a client may stay silent before it is dropped.
func (c *SocketConfig) PongWait() time.Duration {
	return c.PingPeriod() * 10 / 9
}

// WriteWait bounds a single frame write.
func (c *SocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// TokenLifetime is the validity of issued bearer tokens.
func (c *SocketConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

func envInt(key string, dst *int) {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		}
	}
}
