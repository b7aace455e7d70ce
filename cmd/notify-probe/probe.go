package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/client"
	"github.com/orchestra-mcp/notify-harness/src/conn"
	"github.com/orchestra-mcp/notify-harness/src/contract"
	"github.com/orchestra-mcp/notify-harness/src/harness"
	"github.com/rs/zerolog"
)

// selectScenarios returns the named scenarios in suite order, or the
// whole suite when names is empty.
func selectScenarios(names []string) ([]contract.Scenario, error) {
	all := contract.Scenarios()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []contract.Scenario
	for _, sc := range all {
		if want[sc.Name] {
			out = append(out, sc)
			delete(want, sc.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown scenario %q", n)
	}
	return out, nil
}

// runSuite runs the selected scenarios and writes one line per result.
// It fails when any scenario fails.
func runSuite(ctx context.Context, cfg *config.HarnessConfig, names []string, out io.Writer, logger zerolog.Logger) error {
	scenarios, err := selectScenarios(names)
	if err != nil {
		return err
	}
	newFixture := func() (*harness.Fixture, error) { return harness.New(cfg, logger) }
	results := contract.Run(ctx, newFixture, scenarios, logger)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	failed := 0
	for _, r := range results {
		status, detail := "PASS", ""
		if !r.Passed() {
			status, detail = "FAIL", r.Err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", status, r.Name, r.Duration.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

type credentials struct {
	email    string
	password string
	register bool
}

// tail prints every envelope the account receives as one JSON line
// until ctx is done.
func tail(ctx context.Context, cfg *config.HarnessConfig, creds credentials, out io.Writer, logger zerolog.Logger) error {
	if creds.email == "" || creds.password == "" {
		return errors.New("tail needs --email and --password")
	}
	api := client.New(cfg, logger)
	if creds.register {
		if _, err := api.Register(ctx, creds.email, creds.password); err != nil {
			return err
		}
	} else if _, err := api.Login(ctx, creds.email, creds.password); err != nil {
		return err
	}

	wsURL, err := cfg.WSURL()
	if err != nil {
		return err
	}
	c, err := conn.NewDialer(cfg, logger).Open(ctx, wsURL, api.Token())
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(out)
	recheck := time.NewTicker(time.Second)
	defer recheck.Stop()
	var next uint64
	for {
		entries, changed := c.Log().View()
		for _, e := range entries {
			if e.Seq < next {
				continue
			}
			next = e.Seq + 1
			if err := enc.Encode(e.Envelope.Frame()); err != nil {
				return err
			}
		}
		if c.State() == conn.Disconnected {
			return errors.New("connection lost")
		}
		select {
		case <-changed:
		case <-recheck.C:
		case <-ctx.Done():
			return nil
		}
	}
}
