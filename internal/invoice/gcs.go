package invoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GCSStorage implements ImageStore on a Google Cloud Storage bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage creates a GCSStorage for bucket
func NewGCSStorage(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

// Upload writes the image as a new object. Public uploads get the
// publicRead ACL.
func (g *GCSStorage) Upload(ctx context.Context, req UploadRequest, progress func(float64)) (*Upload, error) {
	name := path.Join(req.Folder, uuid.NewString()+extensionFor(req.Data, req.MimeType))

	obj := g.client.Bucket(g.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = req.MimeType
	if req.Filename != "" {
		w.Metadata = map[string]string{"filename": req.Filename}
	}
	if req.Access == AccessPublic {
		w.PredefinedACL = "publicRead"
	}
	if progress != nil && len(req.Data) > 0 {
		total := float64(len(req.Data))
		w.ProgressFunc = func(written int64) {
			progress(float64(written) * 100 / total)
		}
	}

	if _, err := io.Copy(w, bytes.NewReader(req.Data)); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing object %s: %w", name, err)
	}

	upload := describeImage(req.Data, req.MimeType)
	upload.PublicURL = fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, name)
	upload.StorageID = name
	return upload, nil
}

// Close closes the storage client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
