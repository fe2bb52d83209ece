// Package config provides Viper-based configuration loading for the bridge.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the listen port used when none is configured.
const DefaultPort = 6215

// DefaultToken is the shared secret used when none is configured. Running
// with it is allowed but logged as a warning at startup.
const DefaultToken = "default-token"

// RateLimitConfig defines optional per-connection inbound message
// throttling. A zero PerSecond disables it.
type RateLimitConfig struct {
	// Burst is the number of frames a connection may send back to back.
	// Zero means one second's worth of PerSecond.
	Burst int `mapstructure:"burst"`
	// PerSecond is the sustained frame rate refilling the burst.
	PerSecond float64 `mapstructure:"per_second"`
}

// Enabled reports whether frames are throttled at all.
func (r RateLimitConfig) Enabled() bool {
	return r.PerSecond > 0
}

// ServerConfig holds the game-side WebSocket listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Token is the shared secret game-side clients present in their auth frame.
	Token string `mapstructure:"token"`
	// TokenHash, when set, is a bcrypt hash checked instead of Token.
	TokenHash string `mapstructure:"token_hash"`
	// AuthTimeout bounds how long a new connection may take to send its auth frame.
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
	// PingInterval is how often the bridge pings authenticated connections.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait        time.Duration   `mapstructure:"pong_wait"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	MaxMessageSize  int64           `mapstructure:"max_message_size"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// OneBotConfig holds the chat platform connection settings.
type OneBotConfig struct {
	// APIURL is the OneBot v11 HTTP API base URL. Empty disables outbound
	// delivery; relayed messages are only logged.
	APIURL      string `mapstructure:"api_url"`
	AccessToken string `mapstructure:"access_token"`
	// Secret verifies the X-Signature header on inbound event posts.
	Secret string `mapstructure:"secret"`
	// Admins lists the chat user ids allowed to issue game commands.
	Admins  []string      `mapstructure:"admins"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration. It is read once at
// startup and not modified afterwards.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	// Sessions lists the chat conversations game events are relayed to.
	Sessions []string      `mapstructure:"enable_session"`
	OneBot   OneBotConfig  `mapstructure:"onebot"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			Token:           DefaultToken,
			AuthTimeout:     10 * time.Second,
			PingInterval:    30 * time.Second,
			PongWait:        75 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  64 * 1024,
			AllowedOrigins:  []string{},
			RateLimit:       RateLimitConfig{},
			ShutdownTimeout: 10 * time.Second,
		},
		Sessions: []string{},
		OneBot: OneBotConfig{
			Admins:  []string{},
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateOneBot(c.OneBot); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	for i, s := range c.Sessions {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Sprintf("enable_session[%d] must not be empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.Token == "" && s.TokenHash == "" {
		errs = append(errs, "one of server.token or server.token_hash must be set")
	}
	if s.AuthTimeout <= 0 {
		errs = append(errs, "server.auth_timeout must be positive")
	}
	if s.PingInterval <= 0 {
		errs = append(errs, "server.ping_interval must be positive")
	}
	if s.PongWait <= s.PingInterval {
		errs = append(errs, "server.pong_wait must exceed server.ping_interval")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Sprintf("server.max_message_size must be positive, got %d", s.MaxMessageSize))
	}
	if s.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit.burst must not be negative, got %d", s.RateLimit.Burst))
	}
	if s.RateLimit.PerSecond < 0 {
		errs = append(errs, "server.rate_limit.per_second must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateOneBot(o OneBotConfig) error {
	var errs []string
	if o.APIURL != "" {
		u, err := url.Parse(o.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("onebot.api_url must be an http(s) URL, got %q", o.APIURL))
		}
	}
	if o.Timeout <= 0 {
		errs = append(errs, "onebot.timeout must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides (MCBRIDGE_ prefix) and validates the result. An empty
// path loads defaults and environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("MCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.token", d.Server.Token)
	v.SetDefault("server.token_hash", "")
	v.SetDefault("server.auth_timeout", d.Server.AuthTimeout.String())
	v.SetDefault("server.ping_interval", d.Server.PingInterval.String())
	v.SetDefault("server.pong_wait", d.Server.PongWait.String())
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout.String())
	v.SetDefault("server.max_message_size", d.Server.MaxMessageSize)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.rate_limit.per_second", d.Server.RateLimit.PerSecond)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())

	v.SetDefault("enable_session", d.Sessions)

	v.SetDefault("onebot.api_url", "")
	v.SetDefault("onebot.access_token", "")
	v.SetDefault("onebot.secret", "")
	v.SetDefault("onebot.admins", d.OneBot.Admins)
	v.SetDefault("onebot.timeout", d.OneBot.Timeout.String())

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Dump renders cfg as YAML in the same layout Load reads. Secrets are masked.
func Dump(cfg Config) ([]byte, error) {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}

	doc := map[string]any{
		"server": map[string]any{
			"host":             cfg.Server.Host,
			"port":             cfg.Server.Port,
			"token":            mask(cfg.Server.Token),
			"token_hash":       mask(cfg.Server.TokenHash),
			"auth_timeout":     cfg.Server.AuthTimeout.String(),
			"ping_interval":    cfg.Server.PingInterval.String(),
			"pong_wait":        cfg.Server.PongWait.String(),
			"write_timeout":    cfg.Server.WriteTimeout.String(),
			"max_message_size": cfg.Server.MaxMessageSize,
			"allowed_origins":  cfg.Server.AllowedOrigins,
			"rate_limit": map[string]any{
				"burst":      cfg.Server.RateLimit.Burst,
				"per_second": cfg.Server.RateLimit.PerSecond,
			},
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"enable_session": cfg.Sessions,
		"onebot": map[string]any{
			"api_url":      cfg.OneBot.APIURL,
			"access_token": mask(cfg.OneBot.AccessToken),
			"secret":       mask(cfg.OneBot.Secret),
			"admins":       cfg.OneBot.Admins,
			"timeout":      cfg.OneBot.Timeout.String(),
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return out, nil
}
