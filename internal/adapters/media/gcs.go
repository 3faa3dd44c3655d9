package media

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

// GCSUploader stores images in a Cloud Storage bucket and returns their
// public URL.
type GCSUploader struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSUploader creates an uploader using application default credentials.
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required for gcs uploader")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &GCSUploader{
		client: client,
		bucket: bucket,
		now:    time.Now,
	}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := validate(data, mimeType); err != nil {
		return "", err
	}

	ctx, span := observability.Tracer().Start(ctx, "media.gcs.upload")
	defer span.End()

	name := objectName(u.now(), mimeType)
	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		span.RecordError(err)
		return "", fmt.Errorf("%w: gcs write %s: %v", domain.ErrUpload, name, err)
	}
	if err := w.Close(); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: gcs close %s: %v", domain.ErrUpload, name, err)
	}

	observability.Logger().Debug("image uploaded", "bucket", u.bucket, "object", name, "bytes", len(data))
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, name), nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
