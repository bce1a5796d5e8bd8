package main

import (
	"context"
	"os"
	"time"

	"taskify/backend/internal/worker"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var sweepInterval time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs (blob cleanup, orphan sweeps)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.requireQueue(); err != nil {
					return err
				}

				w := worker.NewWorker(worker.WorkerConfig{
					RedisClient:  a.redis,
					KeyPrefix:    a.cfg.Redis.KeyPrefix + "jobs:",
					PollInterval: a.cfg.Worker.PollInterval,
					Queues:       a.cfg.Worker.Queues,
					Logger:       a.logger.With("component", "worker"),
				})
				worker.RegisterMaintenanceHandlers(w, a.attachments, a.attachments, a.logger)
				w.Start(a.cfg.Worker.Concurrency)
				defer w.Stop()

				if sweepInterval <= 0 {
					<-ctx.Done()
					return nil
				}

				ticker := time.NewTicker(sweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := a.queue.EnqueueOrphanSweep(ctx, false); err != nil {
							a.logger.Error("failed to queue orphan sweep", "error", err)
						}
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Hour, "how often to queue an orphan sweep (0 disables)")
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Show background job queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.requireQueue(); err != nil {
					return err
				}
				stats, err := a.queue.Stats(ctx, a.cfg.Worker.Queues...)
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Queue", "Jobs"})
				for _, name := range a.cfg.Worker.Queues {
					tw.AppendRow(table.Row{name, stats[name]})
				}
				tw.AppendRow(table.Row{"scheduled", stats["scheduled"]})
				tw.AppendRow(table.Row{"dead", stats["dead"]})
				tw.Render()
				return nil
			})
		},
	}
}
