package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/storage"

	"github.com/gofrs/uuid"
)

type AttachmentPolicy struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	OrphanGracePeriod time.Duration
}

// BlobCleanupQueue hands blob keys that could not be removed inline to a
// background worker.
type BlobCleanupQueue interface {
	EnqueueBlobCleanup(ctx context.Context, keys []string) error
}

type UploadInput struct {
	Parent      Resource
	FileName    string
	ContentType string
	// Size is the declared length, or -1 when unknown.
	Size int64
	Body io.Reader
}

type MissingBlob struct {
	AttachmentID uuid.UUID `json:"attachment_id"`
	StorageKey   string    `json:"storage_key"`
}

type ReconcileReport struct {
	DryRun         bool               `json:"dry_run"`
	CheckedBlobs   int                `json:"checked_blobs"`
	CheckedRecords int                `json:"checked_records"`
	OrphanBlobs    []storage.BlobInfo `json:"orphan_blobs"`
	MissingBlobs   []MissingBlob      `json:"missing_blobs"`
	RemovedBlobs   int                `json:"removed_blobs"`
	RemovedRecords int                `json:"removed_records"`
}

type AttachmentService interface {
	Upload(ctx context.Context, actor Identity, input UploadInput) (*models.Attachment, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
	ListForTask(ctx context.Context, taskID uuid.UUID) ([]repositories.AttachmentView, error)
	ListForSubTask(ctx context.Context, subTaskID uuid.UUID) ([]repositories.AttachmentView, error)
	ListAll(ctx context.Context, actor Identity, page repositories.Page) ([]repositories.AttachmentView, int64, error)
	Open(ctx context.Context, id uuid.UUID) (*models.Attachment, io.ReadCloser, error)
	DeleteBlobs(ctx context.Context, keys []string) error
	ReconcileOrphans(ctx context.Context, dryRun bool) (*ReconcileReport, error)
}

type AttachmentServiceImpl struct {
	store   *repositories.Store
	blobs   storage.BlobStore
	authz   AuthorizationService
	policy  AttachmentPolicy
	allowed map[string]bool
	queue   BlobCleanupQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewAttachmentService(store *repositories.Store, blobs storage.BlobStore, authz AuthorizationService, policy AttachmentPolicy, logger *slog.Logger) *AttachmentServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxUploadBytes <= 0 {
		policy.MaxUploadBytes = 25 << 20
	}
	if policy.OrphanGracePeriod <= 0 {
		policy.OrphanGracePeriod = time.Hour
	}

	allowed := make(map[string]bool, len(policy.AllowedExtensions))
	for _, ext := range policy.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = true
	}

	return &AttachmentServiceImpl{
		store:   store,
		blobs:   blobs,
		authz:   authz,
		policy:  policy,
		allowed: allowed,
		logger:  logger,
		now:     time.Now,
	}
}

// WithCleanupQueue routes failed blob deletions to queue instead of only
// logging them.
func (s *AttachmentServiceImpl) WithCleanupQueue(queue BlobCleanupQueue) *AttachmentServiceImpl {
	s.queue = queue
	return s
}

// Upload stores the blob first and the record second. A failed record
// insert removes the blob again; a cancelled upload leaves no blob.
func (s *AttachmentServiceImpl) Upload(ctx context.Context, actor Identity, input UploadInput) (*models.Attachment, error) {
	if input.Parent.Kind != ResourceTask && input.Parent.Kind != ResourceSubTask {
		return nil, apperrors.ErrAmbiguousParent
	}
	if err := s.authz.Authorize(ctx, actor, ActionContribute, input.Parent); err != nil {
		if input.Parent.Kind == ResourceSubTask {
			return nil, parentMissing(err, apperrors.ErrSubTaskNotFound, "subtask")
		}
		return nil, parentMissing(err, apperrors.ErrTaskNotFound, "task")
	}

	fileName, ext, err := s.checkFile(input)
	if err != nil {
		monitoring.RecordAttachmentOp("upload", "rejected")
		return nil, err
	}

	contentType := input.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension("." + ext); guessed != "" {
			contentType = guessed
		} else {
			contentType = "application/octet-stream"
		}
	}

	key := uuid.Must(uuid.NewV4()).String()
	written, err := s.blobs.Put(ctx, key, io.LimitReader(input.Body, s.policy.MaxUploadBytes+1), contentType)
	if err != nil {
		monitoring.RecordAttachmentOp("upload", "storage_error")
		s.logger.ErrorContext(ctx, "blob write failed", "storage_key", key, "error", err)
		return nil, apperrors.StorageUnavailable(err)
	}

	if written == 0 || written > s.policy.MaxUploadBytes {
		s.discardBlob(ctx, key)
		monitoring.RecordAttachmentOp("upload", "rejected")
		if written == 0 {
			return nil, apperrors.ErrEmptyFile
		}
		return nil, apperrors.ErrFileTooLarge
	}

	attachment := &models.Attachment{
		FileName:    fileName,
		StorageKey:  key,
		Size:        written,
		ContentType: contentType,
		UploaderID:  &actor.UserID,
		UploadedAt:  s.now().UTC(),
	}
	parentID := input.Parent.ID
	if input.Parent.Kind == ResourceTask {
		attachment.TaskID = &parentID
	} else {
		attachment.SubTaskID = &parentID
	}

	if err := s.store.CreateAttachment(ctx, attachment); err != nil {
		s.discardBlob(ctx, key)
		monitoring.RecordAttachmentOp("upload", "record_error")
		return nil, err
	}

	monitoring.RecordAttachmentOp("upload", "ok")
	monitoring.RecordBlobBytes(written)
	s.logger.InfoContext(ctx, "attachment uploaded",
		"attachment_id", attachment.ID, "storage_key", key, "size", written, "uploader_id", actor.UserID)
	return attachment, nil
}

func (s *AttachmentServiceImpl) checkFile(input UploadInput) (string, string, error) {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(input.FileName, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "", "", apperrors.InvalidInput("file name is required")
	}
	if len(name) > 255 {
		return "", "", apperrors.InvalidInput("file name must be at most 255 characters")
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" || !s.allowed[ext] {
		return "", "", apperrors.ErrUnsupportedType.WithMessage("file type %q is not allowed", ext)
	}

	if input.Size == 0 {
		return "", "", apperrors.ErrEmptyFile
	}
	if input.Size > s.policy.MaxUploadBytes {
		return "", "", apperrors.ErrFileTooLarge
	}
	if input.Body == nil {
		return "", "", apperrors.ErrEmptyFile
	}
	return name, ext, nil
}

// discardBlob removes a blob whose record was never written. It runs even
// when the request context is already cancelled.
func (s *AttachmentServiceImpl) discardBlob(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.blobs.Delete(cleanupCtx, key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.ErrorContext(ctx, "orphan blob cleanup failed", "storage_key", key, "error", err)
		s.enqueueCleanup(ctx, []string{key})
	}
}

// Delete commits the record deletion first and removes the blob afterwards
// through CleanupBlobs, so a cancelled request never leaves a record
// pointing at a deleted blob. Blob failures are queued for the worker.
func (s *AttachmentServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	attachment, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.AuthorizeAttachmentDelete(ctx, actor, attachment); err != nil {
		return err
	}

	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		monitoring.RecordAttachmentOp("delete", "error")
		return err
	}
	s.CleanupBlobs(ctx, []string{attachment.StorageKey})

	monitoring.RecordAttachmentOp("delete", "ok")
	s.logger.InfoContext(ctx, "attachment deleted", "attachment_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *AttachmentServiceImpl) ListForTask(ctx context.Context, taskID uuid.UUID) ([]repositories.AttachmentView, error) {
	if _, err := s.authz.ProjectOf(ctx, TaskResource(taskID)); err != nil {
		return nil, err
	}
	return s.store.ListTaskAttachments(ctx, taskID)
}

func (s *AttachmentServiceImpl) ListForSubTask(ctx context.Context, subTaskID uuid.UUID) ([]repositories.AttachmentView, error) {
	if _, err := s.authz.ProjectOf(ctx, SubTaskResource(subTaskID)); err != nil {
		return nil, err
	}
	return s.store.ListSubTaskAttachments(ctx, subTaskID)
}

func (s *AttachmentServiceImpl) ListAll(ctx context.Context, actor Identity, page repositories.Page) ([]repositories.AttachmentView, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, apperrors.ErrForbidden.WithMessage("only administrators can list all attachments")
	}
	return s.store.ListAllAttachments(ctx, page)
}

// Open returns the record and a reader for its blob. The caller closes the
// reader.
func (s *AttachmentServiceImpl) Open(ctx context.Context, id uuid.UUID) (*models.Attachment, io.ReadCloser, error) {
	attachment, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Open(ctx, attachment.StorageKey)
	if errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.WarnContext(ctx, "attachment blob missing on download", "attachment_id", id, "storage_key", attachment.StorageKey)
		monitoring.RecordAttachmentOp("download", "missing")
		return nil, nil, apperrors.ErrAttachmentNotFound.WithMessage("attachment content is missing")
	}
	if err != nil {
		monitoring.RecordAttachmentOp("download", "storage_error")
		return nil, nil, apperrors.StorageUnavailable(err)
	}
	monitoring.RecordAttachmentOp("download", "ok")
	return attachment, rc, nil
}

// DeleteBlobs removes blobs whose records are already gone. Missing blobs
// count as removed.
func (s *AttachmentServiceImpl) DeleteBlobs(ctx context.Context, keys []string) error {
	var failed []string
	var lastErr error
	for _, key := range keys {
		err := s.blobs.Delete(ctx, key)
		if err == nil || errors.Is(err, storage.ErrBlobNotFound) {
			continue
		}
		failed = append(failed, key)
		lastErr = err
	}
	if len(failed) > 0 {
		return apperrors.StorageUnavailable(fmt.Errorf("%d of %d blobs not removed: %w", len(failed), len(keys), lastErr))
	}
	return nil
}

// CleanupBlobs removes the blobs of a committed delete. Failures are
// queued for the worker, or logged when no queue is configured.
func (s *AttachmentServiceImpl) CleanupBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var failed []string
	for _, key := range keys {
		err := s.blobs.Delete(cleanupCtx, key)
		switch {
		case errors.Is(err, storage.ErrBlobNotFound):
			s.logger.WarnContext(ctx, "blob already missing", "storage_key", key)
		case err != nil:
			s.logger.ErrorContext(ctx, "blob cleanup failed", "storage_key", key, "error", err)
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		s.enqueueCleanup(ctx, failed)
	}
}

func (s *AttachmentServiceImpl) enqueueCleanup(ctx context.Context, keys []string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueBlobCleanup(context.WithoutCancel(ctx), keys); err != nil {
		s.logger.ErrorContext(ctx, "blob cleanup enqueue failed", "keys", keys, "error", err)
	}
}

// ReconcileOrphans compares the blob store with the attachment records.
// Blobs without a record older than the grace period are deleted and
// records whose blob is gone are removed, unless dryRun is set.
func (s *AttachmentServiceImpl) ReconcileOrphans(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	// Records first: a record implies its blob was written earlier, so a
	// later listing that lacks the blob means it is really gone.
	records, err := s.store.AttachmentKeys(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	report := &ReconcileReport{
		DryRun:         dryRun,
		CheckedBlobs:   len(blobs),
		CheckedRecords: len(records),
		OrphanBlobs:    []storage.BlobInfo{},
		MissingBlobs:   []MissingBlob{},
	}

	cutoff := s.now().Add(-s.policy.OrphanGracePeriod)
	present := make(map[string]bool, len(blobs))
	for _, blob := range blobs {
		present[blob.Key] = true
		if _, ok := records[blob.Key]; ok || blob.ModTime.After(cutoff) {
			continue
		}
		report.OrphanBlobs = append(report.OrphanBlobs, blob)
		if dryRun {
			continue
		}
		if err := s.blobs.Delete(ctx, blob.Key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.ErrorContext(ctx, "orphan blob removal failed", "storage_key", blob.Key, "error", err)
			continue
		}
		report.RemovedBlobs++
	}

	for key, id := range records {
		if present[key] {
			continue
		}
		report.MissingBlobs = append(report.MissingBlobs, MissingBlob{AttachmentID: id, StorageKey: key})
		if dryRun {
			continue
		}
		if err := s.store.DeleteAttachment(ctx, id); err != nil && !errors.Is(err, apperrors.ErrAttachmentNotFound) {
			s.logger.ErrorContext(ctx, "dangling attachment record removal failed", "attachment_id", id, "error", err)
			continue
		}
		report.RemovedRecords++
	}

	monitoring.RecordAttachmentOp("sweep", "ok")
	s.logger.InfoContext(ctx, "orphan sweep finished",
		"dry_run", dryRun,
		"orphan_blobs", len(report.OrphanBlobs),
		"missing_blobs", len(report.MissingBlobs),
		"removed_blobs", report.RemovedBlobs,
		"removed_records", report.RemovedRecords)
	return report, nil
}
