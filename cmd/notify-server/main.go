// notify-server runs the reference notification server: the REST
// resource API under /api and the push endpoint at /api/ws.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/providers"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, logLevel string

	flagSet := pflag.NewFlagSet("notify-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML server config")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides config and NOTIFY_ADDR)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	cfg, err := config.LoadSocketConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if cfg.JWTSecret == config.DefaultConfig().JWTSecret {
		logger.Warn().Msg("using the default JWT secret; set NOTIFY_JWT_SECRET")
	}

	srv := providers.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Stop()
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Str("service", "notify-server").
		Logger(), nil
}
