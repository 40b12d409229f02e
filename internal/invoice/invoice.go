package invoice

import (
	"encoding/json"

	"github.com/zombor/invoice-scan/internal/extraction"
	"github.com/zombor/invoice-scan/internal/scanning"
)

// ImageAsset is the input of a pipeline run: local bytes or a URL
type ImageAsset struct {
	Filename string
	Data     []byte
	URL      string
	MimeType string
}

// Size returns the asset size in bytes, zero for URL-only assets
func (a ImageAsset) Size() int64 {
	return int64(len(a.Data))
}

// AccessMode controls the visibility of uploaded images
type AccessMode string

const (
	AccessPublic  AccessMode = "public"
	AccessPrivate AccessMode = "private"
)

// UploadRequest is what the pipeline hands to an ImageStore
type UploadRequest struct {
	Data     []byte
	Folder   string
	Access   AccessMode
	Filename string
	MimeType string
}

// Upload describes a stored image
type Upload struct {
	PublicURL string `json:"publicUrl"`
	StorageID string `json:"storageId"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Ack is the backend acknowledgement, forwarded without interpretation
type Ack = json.RawMessage

// Payload is the submission sent to the ingestion backend
type Payload struct {
	ImageURL              string            `json:"imageUrl"`
	ExtractedText         string            `json:"extractedText"`
	InvoiceData           extraction.Fields `json:"invoiceData"`
	StorageID             string            `json:"storageId"`
	RecognitionConfidence float64           `json:"recognitionConfidence"`
	FileName              string            `json:"fileName"`
	FileSizeBytes         int64             `json:"fileSizeBytes"`
	Timestamp             string            `json:"timestamp"` // RFC 3339
}

// FullResult is returned by a completed RunFull
type FullResult struct {
	RunID       string            `json:"runId"`
	Recognition *scanning.Result  `json:"recognition"`
	Fields      extraction.Fields `json:"fields"`
	Upload      *Upload           `json:"upload"`
	Ack         Ack               `json:"ack"`
}

// LocalResult is returned by a completed RunLocal
type LocalResult struct {
	RunID       string            `json:"runId"`
	Recognition *scanning.Result  `json:"recognition"`
	Fields      extraction.Fields `json:"fields"`
}
