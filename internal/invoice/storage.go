package invoice

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/heic"
	"github.com/google/uuid"
)

// ImageStore uploads images and returns where they can be fetched from
type ImageStore interface {
	// Upload stores req.Data. progress receives upload percentages in [0,100].
	Upload(ctx context.Context, req UploadRequest, progress func(percent float64)) (*Upload, error)
}

// LocalStorage implements ImageStore using the local filesystem. Stored
// images are served by the HTTP server under /images/.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload writes the image below the request folder under a fresh id.
// Access is not enforced; every stored image is reachable by URL.
func (l *LocalStorage) Upload(ctx context.Context, req UploadRequest, progress func(float64)) (*Upload, error) {
	storageID := uuid.NewString()
	name := path.Join(req.Folder, storageID+extensionFor(req.Data, req.MimeType))

	fullPath := l.resolve(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	if err := os.WriteFile(fullPath, req.Data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if progress != nil {
		progress(100)
	}

	upload := describeImage(req.Data, req.MimeType)
	upload.PublicURL = l.baseURL + "/images/" + name
	upload.StorageID = name
	return upload, nil
}

// Get retrieves a stored image by its storage id
func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// resolve maps a storage id to a path that cannot escape basePath.
func (l *LocalStorage) resolve(name string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(path.Clean("/"+name)))
}

// describeImage fills in format, dimensions and size. Dimensions stay zero
// for documents such as PDF.
func describeImage(data []byte, mimeType string) *Upload {
	upload := &Upload{
		Format:    strings.TrimPrefix(extensionFor(data, mimeType), "."),
		SizeBytes: int64(len(data)),
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		upload.Width, upload.Height = cfg.Width, cfg.Height
	} else if cfg, err := heic.DecodeConfig(bytes.NewReader(data)); err == nil {
		upload.Width, upload.Height = cfg.Width, cfg.Height
	}
	return upload
}

func extensionFor(data []byte, mimeType string) string {
	if mimeType != "" {
		if known := mimetype.Lookup(mimeType); known != nil {
			return known.Extension()
		}
	}
	return mimetype.Detect(data).Extension()
}
