package cmd

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/crowdlate/crowdlate/metrics"
)

func newSyncCommand() *cobra.Command {
	var (
		interval    time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "sync [project-slug]",
		Short: "Run a sync cycle for one project or for all enabled projects",
		Long: `Sync pulls every repository of the selected projects, reconciles the
checked-out resource files with the translation database, pushes pending
database work back out as commits, and records the synced revisions.

Without a project slug every enabled project is synced. With --interval
the command keeps running and starts a new cycle each period.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var syncMetrics *metrics.SyncMetrics
			if interval > 0 {
				syncMetrics = metrics.New(prometheus.DefaultRegisterer)
			}
			rt, err := newRuntime(configPath, verbosity, syncMetrics)
			if err != nil {
				return err
			}
			defer rt.Close()

			if concurrency == 0 {
				concurrency = rt.cfg.Concurrency
			}
			if interval > 0 && rt.cfg.MetricsAddr != "" {
				go serveMetrics(rt, rt.cfg.MetricsAddr)
			}

			for {
				runLog := rt.log.WithValues("run", uuid.NewString())
				start := time.Now()
				var runErr error
				if len(args) == 1 {
					runErr = rt.syncer.SyncProject(cmd.Context(), args[0])
				} else {
					runErr = rt.syncer.SyncAll(cmd.Context(), concurrency)
				}
				if runErr != nil {
					if interval == 0 {
						return runErr
					}
					runLog.Error(runErr, "sync cycle failed")
				} else {
					runLog.V(1).Info("sync cycle finished", "duration", time.Since(start).String())
				}

				if interval == 0 {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Keep running and start a new cycle each period")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Projects to sync in parallel (defaults to the configured value)")
	return cmd
}

func serveMetrics(rt *runtime, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		rt.log.Error(err, "metrics server stopped")
	}
}
