package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/mcbridge/internal/config"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header is a game server", []string{"https://panel.example.com"}, "", true},
		{"no configured origins rejects browsers", nil, "https://panel.example.com", false},
		{"exact match", []string{"https://panel.example.com"}, "https://panel.example.com", true},
		{"case insensitive", []string{"HTTPS://Panel.Example.com"}, "https://panel.example.COM", true},
		{"port matters", []string{"https://panel.example.com"}, "https://panel.example.com:8443", false},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"invalid configured origin ignored", []string{"panel", " "}, "https://panel", false},
		{"malformed request origin", []string{"https://panel.example.com"}, "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, zaptest.NewLogger(t))
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(req))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Burst: 2, PerSecond: 0.001})
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	var none *rateLimiter
	assert.True(t, none.allow(), "nil limiter never throttles")
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	assert.Nil(t, newRateLimiter(config.RateLimitConfig{}))
	assert.Nil(t, newRateLimiter(config.RateLimitConfig{Burst: 5}))
	assert.Nil(t, newRateLimiter(config.Default().Server.RateLimit))
}

func TestRateLimiterBurstDefaultsToOneSecond(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{PerSecond: 2.5})
	require.NotNil(t, rl)
	assert.Equal(t, 3, rl.cfg.Burst)

	rl = newRateLimiter(config.RateLimitConfig{PerSecond: 0.01})
	require.NotNil(t, rl)
	assert.Equal(t, 1, rl.cfg.Burst)
}

func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(config.ServerConfig{
		PingInterval: 10 * time.Second,
		PongWait:     5 * time.Second,
	})

	defaults := config.Default().Server
	assert.Equal(t, defaults.Host, cfg.Host)
	assert.Equal(t, defaults.AuthTimeout, cfg.AuthTimeout)
	assert.Equal(t, 25*time.Second, cfg.PongWait)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, 0, cfg.Port, "port 0 is kept so the OS can choose")
}
