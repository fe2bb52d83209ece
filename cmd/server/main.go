// Package main runs the bridge between chat groups and Minecraft servers.
// It wires configuration, logging, the OneBot transport and the game-side
// WebSocket listener, then serves until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/chatcmd"
	"github.com/Tyrowin/mcbridge/internal/config"
	"github.com/Tyrowin/mcbridge/internal/observability"
	"github.com/Tyrowin/mcbridge/internal/onebot"
	"github.com/Tyrowin/mcbridge/internal/relay"
	"github.com/Tyrowin/mcbridge/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to YAML configuration file (defaults and MCBRIDGE_* env when empty)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			log.Fatalf("rendering config: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics()

	for _, session := range cfg.Sessions {
		if _, err := onebot.ParseDestination(session); err != nil {
			logger.Warn("chat destination will not receive messages", zap.String("session", session), zap.Error(err))
		}
	}

	rel := relay.New(newSender(cfg.OneBot, logger), cfg.Sessions, logger,
		relay.WithDeliveryHook(func(ok bool) {
			metrics.Relays.WithLabelValues(observability.Result(ok)).Inc()
		}),
	)

	srv := server.New(cfg.Server, rel, logger, server.WithMetrics(metrics))
	commands := chatcmd.New(srv, srv.Dispatcher(), cfg.OneBot.Admins, logger)
	srv.Handle("/onebot/event", onebot.NewEventHandler(commands, cfg.OneBot.Secret, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("starting server", zap.Error(err))
	}

	logger.Info("bridge initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", srv.Addr()),
		zap.Int("chat_destinations", len(cfg.Sessions)),
		zap.Bool("onebot_api", cfg.OneBot.APIURL != ""),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", zap.Error(err))
	}
}

// newSender returns the OneBot client, or a sender that only logs when no
// API endpoint is configured.
func newSender(cfg config.OneBotConfig, logger *zap.Logger) relay.Sender {
	if cfg.APIURL != "" {
		return onebot.NewClient(cfg, logger)
	}

	logger.Warn("onebot.api_url not set, relayed messages will only be logged")
	return relay.SenderFunc(func(_ context.Context, destination, text string) error {
		logger.Info("chat message (not delivered)",
			zap.String("destination", destination),
			zap.String("text", text),
		)
		return nil
	})
}
