package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, 54, cfg.PingInterval)
	assert.Equal(t, 10, cfg.WriteTimeout)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 60*time.Second, cfg.PongWait())
	assert.True(t, cfg.Welcome)
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestSocketConfigFromEnv(t *testing.T) {
	t.Setenv("NOTIFY_ADDR", "127.0.0.1:9000")
	t.Setenv("NOTIFY_JWT_SECRET", "s3cret")
	t.Setenv("NOTIFY_SEND_BUFFER", "8")
	t.Setenv("NOTIFY_WELCOME", "false")
	t.Setenv("NOTIFY_PING_INTERVAL", "not-a-number")
	t.Setenv("NOTIFY_BCRYPT_COST", "4")

	cfg := SocketConfigFromEnv(DefaultConfig())
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.False(t, cfg.Welcome)
	assert.Equal(t, 54, cfg.PingInterval) // falls back to default
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestDefaultHarnessConfig(t *testing.T) {
	cfg := DefaultHarnessConfig()
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 3*time.Second, cfg.NegativeWait)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "http://localhost:8081/api", cfg.APIBase())

	ws, err := cfg.WSURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8081/api/ws", ws)
}

func TestWSURLSecureScheme(t *testing.T) {
	cfg := DefaultHarnessConfig()
	cfg.BaseURL = "https://example.com/"

	ws, err := cfg.WSURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/api/ws", ws)

	cfg.BaseURL = "ftp://example.com"
	_, err = cfg.WSURL()
	assert.Error(t, err)
}

func TestLoadHarnessConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://api.internal:9090
handshake_timeout: 2s
wait_timeout: 7s
write_timeout: 1s
await_welcome: true
`), 0o600))
	t.Setenv("HARNESS_WAIT_TIMEOUT", "4s")
	t.Setenv("HARNESS_WRITE_TIMEOUT", "750ms")

	cfg, err := LoadHarnessConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:9090", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 4*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 3*time.Second, cfg.NegativeWait)
	assert.Equal(t, 750*time.Millisecond, cfg.WriteTimeout)
	assert.True(t, cfg.AwaitWelcome)
}

func TestLoadSocketConfigMissingFile(t *testing.T) {
	_, err := LoadSocketConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	cfg, err := LoadSocketConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Addr)
}
