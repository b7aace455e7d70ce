// notify-probe checks a running notification server against the
// notification contract, or tails the envelopes one user receives.
//
// Usage:
//
//	notify-probe [flags] run [scenario...]
//	notify-probe [flags] tail --email E --password P
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/notify-harness/config"
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
	var (
		configPath string
		baseURL    string
		logLevel   string
		email      string
		password   string
		register   bool
	)

	flagSet := pflag.NewFlagSet("notify-probe", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML harness config")
	flagSet.StringVar(&baseURL, "base-url", "", "server base URL (overrides config and HARNESS_BASE_URL)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.StringVar(&email, "email", "", "tail: account email")
	flagSet.StringVar(&password, "password", "", "tail: account password")
	flagSet.BoolVar(&register, "register", false, "tail: register the account first")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: notify-probe [flags] run [scenario...] | tail\n\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Str("service", "notify-probe").
		Logger()

	cfg, err := config.LoadHarnessConfig(configPath)
	if err != nil {
		return err
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "run":
		return runSuite(ctx, cfg, args[1:], os.Stdout, logger)
	case "tail":
		return tail(ctx, cfg, credentials{email: email, password: password, register: register}, os.Stdout, logger)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
