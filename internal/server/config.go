// Package server fills in runtime defaults for listener settings that were
// left zero, so partially specified configurations still behave sensibly.
package server

import (
	"github.com/Tyrowin/mcbridge/internal/config"
)

func sanitizeConfig(cfg config.ServerConfig) config.ServerConfig {
	defaults := config.Default().Server

	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaults.AuthTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval * 5 / 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)

	return cfg
}
