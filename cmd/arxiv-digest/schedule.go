// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-digest/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline periodically until interrupted",
	Long: `Schedule runs the pipeline once immediately and then whenever the cron
expression (default every 12 hours) is due. A tick that finds the lease held
by another run is skipped. Use --metrics-addr to expose Prometheus metrics.`,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	flags := cmd.Flags()
	if flags.Changed("cron") {
		cfg.Schedule.Cron, _ = flags.GetString("cron")
	}
	if flags.Changed("interval") {
		cfg.Schedule.Interval, _ = flags.GetDuration("interval")
		if !flags.Changed("cron") {
			cfg.Schedule.Cron = ""
		}
	}
	opts, err := runOptions(cmd, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := scheduler.New(a.pipeline, a.lease, cfg.Schedule, opts, a.logger,
		scheduler.WithHistory(a.history),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithStateHook(func(from, to scheduler.State) {
			a.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("scheduler state")
		}),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Start(ctx) })

	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			a.logger.Info().Str("addr", addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func init() {
	addRunFlags(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "five-field cron expression (default from config: 0 */12 * * *)")
	scheduleCmd.Flags().Duration("interval", 0, "fixed interval between runs, used instead of --cron")
	scheduleCmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on (e.g. :9090)")

	rootCmd.AddCommand(scheduleCmd)
}
