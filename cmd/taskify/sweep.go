package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"taskify/backend/internal/services"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSweepOrphansCmd() *cobra.Command {
	var (
		dryRun  bool
		asJSON  bool
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Reconcile stored blobs with attachment records",
		Long: `Removes blobs that no attachment record references once they are older
than the orphan grace period, and drops attachment records whose blob is gone.
With --enqueue the sweep runs on the background worker instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if enqueue {
					if err := a.requireQueue(); err != nil {
						return err
					}
					if err := a.queue.EnqueueOrphanSweep(ctx, dryRun); err != nil {
						return err
					}
					a.logger.Info("orphan sweep queued", "dry_run", dryRun)
					return nil
				}

				report, err := a.attachments.ReconcileOrphans(ctx, dryRun)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				renderReport(os.Stdout, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting anything")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the sweep for the worker")
	return cmd
}

func renderReport(w io.Writer, report *services.ReconcileReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Orphan sweep")
	tw.AppendHeader(table.Row{"Kind", "Storage key", "Detail"})
	for _, blob := range report.OrphanBlobs {
		tw.AppendRow(table.Row{"orphan blob", blob.Key, blob.ModTime.Format("2006-01-02 15:04:05")})
	}
	for _, missing := range report.MissingBlobs {
		tw.AppendRow(table.Row{"missing blob", missing.StorageKey, missing.AttachmentID.String()})
	}
	tw.AppendFooter(table.Row{"", "dry run", report.DryRun})
	tw.AppendFooter(table.Row{"", "checked blobs / records", formatPair(report.CheckedBlobs, report.CheckedRecords)})
	tw.AppendFooter(table.Row{"", "removed blobs / records", formatPair(report.RemovedBlobs, report.RemovedRecords)})
	tw.Render()
}

func formatPair(a, b int) string {
	return fmt.Sprintf("%d / %d", a, b)
}
