package worker

import (
	"context"
	"fmt"
	"log/slog"

	"taskify/backend/internal/services"
)

// BlobDeleter removes blobs whose attachment records are already gone.
type BlobDeleter interface {
	DeleteBlobs(ctx context.Context, keys []string) error
}

// OrphanSweeper reconciles the blob store with the attachment records.
type OrphanSweeper interface {
	ReconcileOrphans(ctx context.Context, dryRun bool) (*services.ReconcileReport, error)
}

// RegisterMaintenanceHandlers wires the blob_cleanup and orphan_sweep jobs.
func RegisterMaintenanceHandlers(w *Worker, blobs BlobDeleter, sweeper OrphanSweeper, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	w.RegisterHandler(JobTypeBlobCleanup, func(ctx context.Context, job *Job) error {
		keys, err := stringSlice(job.Payload["keys"])
		if err != nil {
			return err
		}
		if err := blobs.DeleteBlobs(ctx, keys); err != nil {
			return err
		}
		logger.InfoContext(ctx, "blobs removed", "job_id", job.ID, "count", len(keys))
		return nil
	})

	w.RegisterHandler(JobTypeOrphanSweep, func(ctx context.Context, job *Job) error {
		dryRun, _ := job.Payload["dry_run"].(bool)
		report, err := sweeper.ReconcileOrphans(ctx, dryRun)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "orphan sweep finished",
			"job_id", job.ID,
			"dry_run", report.DryRun,
			"orphan_blobs", len(report.OrphanBlobs),
			"missing_blobs", len(report.MissingBlobs),
			"removed_blobs", report.RemovedBlobs,
			"removed_records", report.RemovedRecords,
		)
		return nil
	})
}

// stringSlice reads a JSON-decoded list of strings.
func stringSlice(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}
