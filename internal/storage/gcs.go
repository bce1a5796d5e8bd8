package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs as objects in a Google Cloud Storage bucket, under
// an optional prefix.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *GCSStore) object(key string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key))
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	// Cancelling the writer's context before Close abandons the upload, so a
	// failed copy never produces an object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(wctx)
	w.ContentType = contentType
	w.CacheControl = "private, no-store"

	n, err := copyWithContext(ctx, w, r)
	if err != nil {
		cancel()
		w.Close()
		return 0, fmt.Errorf("failed to copy blob %s to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return n, nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	rc, err := s.object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrBlobNotFound
	}
	return rc, err
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := s.object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	return err
}

func (s *GCSStore) List(ctx context.Context) ([]BlobInfo, error) {
	query := &gcs.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}

	var blobs []BlobInfo
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		blobs = append(blobs, BlobInfo{
			Key:     strings.TrimPrefix(attrs.Name, query.Prefix),
			Size:    attrs.Size,
			ModTime: attrs.Updated,
		})
	}
	return blobs, nil
}

func (s *GCSStore) Ping(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return err
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
