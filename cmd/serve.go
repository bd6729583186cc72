package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/watcher"
)

// defaultServeAddress is used when neither --metrics-addr nor metrics.address is set.
const defaultServeAddress = "127.0.0.1:9464"

type serveOptions struct {
	address     string
	parallelism int
	interval    time.Duration
	debounce    time.Duration
	followLog   bool
}

func newServeCmd(s *session) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and keep chain verification results current",
		Long: `Serve Prometheus metrics and verify every register's chain at start-up,
on every --interval, and (for the sqlite driver) whenever another process
writes to the database. Results are exported as chain_valid and
register_height gauges.

Examples:
  register serve --metrics-addr :9464
  register serve --interval 0   # sqlite only: re-verify on writes alone
  register serve --follow-log   # also print log lines (needs log.enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.parallelism < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", opts.parallelism)
			}
			if opts.interval < 0 {
				return fmt.Errorf("--interval must not be negative, got %s", opts.interval)
			}
			if opts.followLog && !s.cfg.Log.Enabled {
				return fmt.Errorf("--follow-log requires log.enabled")
			}
			s.serveMetrics = true
			switch {
			case cmd.Flags().Changed("metrics-addr"):
				s.cfg.Metrics.Address = opts.address
			case s.cfg.Metrics.Address == "":
				s.cfg.Metrics.Address = defaultServeAddress
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.withApp(ctx, func(a *app.App) error {
				return serve(ctx, cmd.OutOrStdout(), a, s.cfg.Storage, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.address, "metrics-addr", "", "Metrics listen address (default metrics.address, then "+defaultServeAddress+")")
	cmd.Flags().IntVarP(&opts.parallelism, "parallel", "p", 4, "Registers verified concurrently")
	cmd.Flags().DurationVar(&opts.interval, "interval", 5*time.Minute, "Re-verify on this period; 0 disables")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watcher.DefaultConfig("").Debounce, "Quiet time after a database write before re-verifying")
	cmd.Flags().BoolVar(&opts.followLog, "follow-log", false, "Print log lines to stdout as they are written")
	return cmd
}

// serve runs audits until ctx is done.
func serve(ctx context.Context, out io.Writer, a *app.App, storage config.StorageConfig, opts serveOptions) error {
	if _, err := fmt.Fprintf(out, "serving metrics on %s\n", a.MetricsAddr()); err != nil {
		return err
	}

	var changes <-chan struct{}
	if storage.Driver == config.DriverSQLite {
		w, err := watcher.New(watcher.Config{Path: storage.SQLite.Path, Debounce: opts.debounce})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
		if changes, err = w.Start(); err != nil {
			return err
		}
	}

	var logs <-chan log.Entry
	if opts.followLog {
		logs = log.Subscribe(ctx)
	}

	var tick <-chan time.Time
	if opts.interval > 0 {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	audit(ctx, out, a, opts.parallelism, "start")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			audit(ctx, out, a, opts.parallelism, "write")
		case <-tick:
			audit(ctx, out, a, opts.parallelism, "interval")
		case e, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			if _, err := io.WriteString(out, e.Payload); err != nil {
				return err
			}
		}
	}
}

// audit verifies every register and prints a one-line summary.
func audit(ctx context.Context, out io.Writer, a *app.App, parallelism int, reason string) {
	results, err := a.VerifyAllChains(ctx, parallelism)
	if err != nil {
		log.ErrorErr(log.CatDocket, "chain audit failed", err, "reason", reason)
		_, _ = fmt.Fprintf(out, "audit (%s): %v\n", reason, err)
		return
	}
	invalid := 0
	for _, r := range results {
		if !r.Valid() {
			invalid++
		}
	}
	log.Info(log.CatDocket, "chain audit", "reason", reason, "registers", len(results), "invalid", invalid)
	_, _ = fmt.Fprintf(out, "audit (%s): %d register(s), %d invalid\n", reason, len(results), invalid)
}
