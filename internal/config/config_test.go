package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:6215", cfg.Server.Addr())
}

func TestAddrIPv6(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "::1"
	assert.Equal(t, "[::1]:6215", cfg.Server.Addr())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.AuthTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	err := os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 7000
  token: s3cret
  auth_timeout: 3s
  rate_limit:
    burst: 5
    per_second: 2.5
enable_session:
  - aiocqhttp:GroupMessage:123456
  - aiocqhttp:GroupMessage:654321
onebot:
  api_url: http://127.0.0.1:5700
  admins: ["10001"]
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr())
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, 3*time.Second, cfg.Server.AuthTimeout)
	assert.Equal(t, 5, cfg.Server.RateLimit.Burst)
	assert.InDelta(t, 2.5, cfg.Server.RateLimit.PerSecond, 1e-9)
	assert.Equal(t, []string{"aiocqhttp:GroupMessage:123456", "aiocqhttp:GroupMessage:654321"}, cfg.Sessions)
	assert.Equal(t, []string{"10001"}, cfg.OneBot.Admins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.PingInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MCBRIDGE_SERVER_TOKEN", "from-env")
	t.Setenv("MCBRIDGE_SERVER_PORT", "7100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	cfg := Default()
	cfg.Server.Token = ""
	assert.Error(t, cfg.Validate())

	cfg.Server.TokenHash = "$2a$10$abcdefghijklmnopqrstuv"
	assert.NoError(t, cfg.Validate())
}

func TestValidatePongWaitExceedsPing(t *testing.T) {
	cfg := Default()
	cfg.Server.PongWait = cfg.Server.PingInterval
	assert.Error(t, cfg.Validate())
}

func TestValidateOneBotURL(t *testing.T) {
	cfg := Default()
	cfg.OneBot.APIURL = "ftp://example.com"
	assert.Error(t, cfg.Validate())

	cfg.OneBot.APIURL = "https://bot.example.com/api"
	assert.NoError(t, cfg.Validate())
}

func TestValidateEmptySession(t *testing.T) {
	cfg := Default()
	cfg.Sessions = []string{"group:1", " "}
	assert.Error(t, cfg.Validate())
}

func TestValidateLogging(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := Default()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := Default()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateRateLimit(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Server.RateLimit.Enabled(), "throttling is off unless configured")
	assert.NoError(t, cfg.Validate())

	cfg.Server.RateLimit = RateLimitConfig{PerSecond: 5}
	assert.True(t, cfg.Server.RateLimit.Enabled())
	assert.NoError(t, cfg.Validate())

	cfg.Server.RateLimit = RateLimitConfig{Burst: -1}
	assert.Error(t, cfg.Validate())

	cfg.Server.RateLimit = RateLimitConfig{PerSecond: -1}
	assert.Error(t, cfg.Validate())
}

func TestValidateCollectsAllViolations(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestDumpMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Server.Token = "s3cret"
	cfg.OneBot.AccessToken = "bot-token"

	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
	assert.NotContains(t, string(out), "bot-token")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	server := doc["server"].(map[string]any)
	assert.Equal(t, 6215, server["port"])
	assert.Equal(t, "10s", server["auth_timeout"])
}

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := Default()
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := Default()
		cfg.Server.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}
