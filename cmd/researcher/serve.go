package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/scheduler"
	srv "github.com/mohammad-safakhou/researcher/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var runTimeout time.Duration
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Address
			}

			ctx, cancel := runtime.SignalContext(cmd.Context(), "serve", nil)
			defer cancel()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := srv.Deps{
				Config:     cfg.Server,
				Runner:     a.runner,
				Index:      a.index,
				Metrics:    a.metrics.Handler(),
				Logger:     a.logger,
				RunTimeout: runTimeout,
			}
			if a.store != nil {
				deps.Runs = a.store
			}
			if !cfg.Server.AuthEnabled() {
				a.logger.Warn("server.jwt_secret not set; API routes are unauthenticated")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx, addr, srv.New(deps), a.logger) })

			if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsPort > 0 {
				g.Go(func() error { return a.metrics.ServeMetrics(gctx, cfg.Telemetry.MetricsPort, a.logger) })
			}

			if !noScheduler && len(cfg.Schedules) > 0 {
				var opts []scheduler.Option
				if a.rdb != nil {
					reg, err := streams.NewBaseRegistry()
					if err != nil {
						return err
					}
					opts = append(opts,
						scheduler.WithLocker(a.rdb),
						scheduler.WithAnnouncer(&streams.ScheduleAnnouncer{
							Publisher: streams.NewPublisher(a.rdb, reg),
							Stream:    cfg.Storage.Redis.Stream,
							MaxLen:    cfg.Storage.Redis.StreamMaxLen,
						}),
					)
				}
				sched, err := scheduler.New(cfg.Schedules, a.runner, a.logger, opts...)
				if err != nil {
					return err
				}
				g.Go(func() error { return sched.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.address)")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 10*time.Minute, "upper bound for a synchronous research request")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run configured schedules")
	return cmd
}
