package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/zombor/invoice-scan/internal/extraction"
	"github.com/zombor/invoice-scan/internal/scanning"
)

// MaxImageBytes is the default upper bound on accepted images
const MaxImageBytes = 20 << 20

// DefaultFolder is the storage folder used when none is configured
const DefaultFolder = "invoices"

var acceptedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
	"image/heic",
	"image/heif",
	"application/pdf",
}

// IDGenerator generates run identifiers
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline orchestrates upload, recognition, extraction and submission
type Pipeline struct {
	store         ImageStore
	recognizer    *scanning.Adapter
	backend       Backend
	fetcher       scanning.Fetcher
	extractor     *extraction.Extractor
	metrics       *Metrics
	idGenerator   IDGenerator
	timeSource    TimeSource
	folder        string
	access        AccessMode
	maxImageBytes int64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithFolder sets the storage folder for uploads
func WithFolder(folder string) Option {
	return func(p *Pipeline) { p.folder = folder }
}

// WithAccess sets the access mode for uploads
func WithAccess(access AccessMode) Option {
	return func(p *Pipeline) { p.access = access }
}

// WithMaxImageBytes overrides MaxImageBytes
func WithMaxImageBytes(n int64) Option {
	return func(p *Pipeline) { p.maxImageBytes = n }
}

// WithExtractor replaces the default field extractor
func WithExtractor(e *extraction.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithMetrics records run and stage metrics
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithFetcher sets the fetcher used to download URL assets before upload
func WithFetcher(f scanning.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// NewPipeline creates a new Pipeline. store and backend may be nil when only
// RunLocal is used.
func NewPipeline(store ImageStore, recognizer *scanning.Adapter, backend Backend, opts ...Option) *Pipeline {
	return NewPipelineWithDeps(store, recognizer, backend, uuidGenerator{}, defaultTimeSource{}, opts...)
}

// NewPipelineWithDeps creates a new Pipeline with custom dependencies (for testing)
func NewPipelineWithDeps(store ImageStore, recognizer *scanning.Adapter, backend Backend, idGen IDGenerator, timeSrc TimeSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:         store,
		recognizer:    recognizer,
		backend:       backend,
		fetcher:       scanning.NewHTTPFetcher(30 * time.Second),
		extractor:     extraction.NewExtractor(),
		idGenerator:   idGen,
		timeSource:    timeSrc,
		folder:        DefaultFolder,
		access:        AccessPublic,
		maxImageBytes: MaxImageBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunFull uploads the image, recognizes it, extracts invoice fields and
// submits the result. Once started, collaborator calls run to completion even
// if ctx is cancelled; callers that lose interest ignore the run's events.
func (p *Pipeline) RunFull(ctx context.Context, asset ImageAsset, observer Observer) (*FullResult, error) {
	ctx = context.WithoutCancel(ctx)

	if err := p.validate(asset); err != nil {
		p.metrics.runFinished(ModeFull, err)
		return nil, err
	}

	run := p.newRun(ModeFull, observer)
	logger := slog.With("run_id", run.ID, "mode", run.Mode.String())
	logger.Info("Starting invoice scan", "filename", asset.Filename, "size", asset.Size(), "url", asset.URL)

	if err := run.advance(StageUploading); err != nil {
		return nil, err
	}
	upload, data, mimeType, err := p.upload(ctx, run, asset)
	if err != nil {
		logger.Error("Failed to upload image", "error", err)
		return nil, p.fail(run, &UploadError{Err: err})
	}
	logger.Info("Image uploaded", "storage_id", upload.StorageID, "url", upload.PublicURL)

	if err := run.advance(StageRecognizing); err != nil {
		return nil, err
	}
	recognition, fields, err := p.recognize(ctx, run, scanning.Image{URL: upload.PublicURL, Data: data, MimeType: mimeType})
	if err != nil {
		logger.Error("Failed to recognize image", "error", err)
		return nil, p.fail(run, err)
	}
	logger.Info("Image recognized", "confidence", recognition.Confidence, "number", fields.Number, "total", fields.Total)

	if err := run.advance(StageSubmitting); err != nil {
		return nil, err
	}
	payload := p.payload(asset, upload, recognition, fields)
	ack, err := p.submit(ctx, payload)
	if err != nil {
		logger.Error("Failed to submit invoice", "error", err)
		return nil, p.fail(run, &SubmissionError{
			Err:         err,
			Recognition: recognition,
			Fields:      fields,
			Upload:      upload,
			Payload:     payload,
		})
	}
	run.report(StageSubmitting, 100)

	if err := run.advance(StageComplete); err != nil {
		return nil, err
	}
	run.report(StageComplete, 100)
	p.metrics.runFinished(ModeFull, nil)
	logger.Info("Invoice scan complete")

	return &FullResult{
		RunID:       run.ID,
		Recognition: recognition,
		Fields:      fields,
		Upload:      upload,
		Ack:         ack,
	}, nil
}

// RunLocal recognizes the image and extracts invoice fields without
// uploading or submitting anything.
func (p *Pipeline) RunLocal(ctx context.Context, asset ImageAsset, observer Observer) (*LocalResult, error) {
	ctx = context.WithoutCancel(ctx)

	if err := p.validate(asset); err != nil {
		p.metrics.runFinished(ModeLocal, err)
		return nil, err
	}

	run := p.newRun(ModeLocal, observer)
	logger := slog.With("run_id", run.ID, "mode", run.Mode.String())
	logger.Info("Starting local invoice scan", "filename", asset.Filename, "size", asset.Size(), "url", asset.URL)

	if err := run.advance(StageRecognizing); err != nil {
		return nil, err
	}
	img := scanning.Image{URL: asset.URL, Data: asset.Data, MimeType: asset.MimeType}
	recognition, fields, err := p.recognize(ctx, run, img)
	if err != nil {
		logger.Error("Failed to recognize image", "error", err)
		return nil, p.fail(run, err)
	}

	if err := run.advance(StageComplete); err != nil {
		return nil, err
	}
	run.report(StageComplete, 100)
	p.metrics.runFinished(ModeLocal, nil)
	logger.Info("Local invoice scan complete", "confidence", recognition.Confidence)

	return &LocalResult{
		RunID:       run.ID,
		Recognition: recognition,
		Fields:      fields,
	}, nil
}

// RetrySubmission resubmits the payload of a failed full run without
// repeating upload or recognition.
func (p *Pipeline) RetrySubmission(ctx context.Context, failed *SubmissionError) (Ack, error) {
	if failed == nil {
		return nil, errors.New("no failed submission to retry")
	}
	ack, err := p.submit(context.WithoutCancel(ctx), failed.Payload)
	if err != nil {
		slog.Error("Failed to resubmit invoice", "storage_id", failed.Payload.StorageID, "error", err)
		return nil, &SubmissionError{
			Err:         err,
			Recognition: failed.Recognition,
			Fields:      failed.Fields,
			Upload:      failed.Upload,
			Payload:     failed.Payload,
		}
	}
	return ack, nil
}

func (p *Pipeline) newRun(mode Mode, observer Observer) *Run {
	run := newRun(p.idGenerator.Generate(), mode, observer)
	run.onStageEnd = p.metrics.observeStage
	return run
}

func (p *Pipeline) fail(run *Run, err error) error {
	p.metrics.runFinished(run.Mode, err)
	return run.fail(err)
}

func (p *Pipeline) validate(asset ImageAsset) error {
	if len(asset.Data) == 0 {
		if asset.URL == "" {
			return &ValidationError{Reason: "no image data or url"}
		}
		u, err := url.Parse(asset.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Reason: fmt.Sprintf("image url %q must be http or https", asset.URL)}
		}
		return nil
	}
	return p.checkData(asset.Data)
}

func (p *Pipeline) checkData(data []byte) error {
	if p.maxImageBytes > 0 && int64(len(data)) > p.maxImageBytes {
		return &ValidationError{Reason: fmt.Sprintf("image is %d bytes, limit is %d", len(data), p.maxImageBytes)}
	}
	detected := mimetype.Detect(data)
	for _, accepted := range acceptedMimeTypes {
		if detected.Is(accepted) {
			return nil
		}
	}
	return &ValidationError{Reason: fmt.Sprintf("unsupported image type %s", detected.String())}
}

// upload stores the asset, downloading it first when only a URL is given.
// Downloading accounts for the first half of the stage's progress.
func (p *Pipeline) upload(ctx context.Context, run *Run, asset ImageAsset) (*Upload, []byte, string, error) {
	if p.store == nil {
		return nil, nil, "", errors.New("no image store configured")
	}

	data, declared := asset.Data, asset.MimeType
	scale := func(pct float64) float64 { return pct }
	if len(data) == 0 {
		fetched, contentType, err := p.download(ctx, asset.URL)
		if err != nil {
			return nil, nil, "", err
		}
		data = fetched
		if declared == "" {
			declared = contentType
		}
		run.report(StageUploading, 50)
		scale = func(pct float64) float64 { return 50 + pct/2 }
	}

	mimeType := scanning.DetectMimeType(data, declared)
	upload, err := p.store.Upload(ctx, UploadRequest{
		Data:     data,
		Folder:   p.folder,
		Access:   p.access,
		Filename: assetName(asset),
		MimeType: mimeType,
	}, func(pct float64) {
		run.report(StageUploading, scale(pct))
	})
	if err != nil {
		return nil, nil, "", err
	}
	run.report(StageUploading, 100)
	return upload, data, mimeType, nil
}

// download fetches a URL asset and applies the same size and type checks
// that inline data gets before any stage starts.
func (p *Pipeline) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if p.fetcher == nil {
		return nil, "", errors.New("no fetcher configured for url assets")
	}
	data, contentType, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if err := p.checkData(data); err != nil {
		return nil, "", fmt.Errorf("downloaded %s: %w", rawURL, err)
	}
	return data, contentType, nil
}

// recognize runs recognition inside a session scope and extracts fields.
// A panic during recognition or extraction fails the stage; the session is
// released either way.
func (p *Pipeline) recognize(ctx context.Context, run *Run, img scanning.Image) (result *scanning.Result, fields extraction.Fields, err error) {
	if len(img.Data) == 0 && img.URL != "" {
		data, contentType, dlErr := p.download(ctx, img.URL)
		if dlErr != nil {
			reason := scanning.ReasonImageUnavailable
			var validationErr *ValidationError
			if errors.As(dlErr, &validationErr) {
				reason = scanning.ReasonUnsupportedImage
			}
			return nil, fields, &RecognitionError{Reason: reason, Err: dlErr}
		}
		img.Data = data
		if img.MimeType == "" {
			img.MimeType = contentType
		}
	}

	session, err := p.recognizer.Acquire(ctx)
	if err != nil {
		return nil, fields, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.Warn("Failed to release recognition session", "run_id", run.ID, "error", closeErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic during recognition", "run_id", run.ID, "panic", r)
			result, fields = nil, extraction.Fields{}
			err = &RecognitionError{Reason: scanning.ReasonEngineFailure, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, err = session.Recognize(ctx, img, func(pct float64) {
		run.report(StageRecognizing, pct)
	})
	if err != nil {
		var recErr *RecognitionError
		if !errors.As(err, &recErr) {
			err = &RecognitionError{Reason: scanning.ReasonEngineFailure, Err: err}
		}
		return nil, fields, err
	}

	fields = p.extractor.Extract(result.Text)
	run.report(StageRecognizing, 100)
	return result, fields, nil
}

func (p *Pipeline) submit(ctx context.Context, payload Payload) (Ack, error) {
	if p.backend == nil {
		return nil, errors.New("no submission backend configured")
	}
	return p.backend.Submit(ctx, payload)
}

func (p *Pipeline) payload(asset ImageAsset, upload *Upload, recognition *scanning.Result, fields extraction.Fields) Payload {
	return Payload{
		ImageURL:              upload.PublicURL,
		ExtractedText:         recognition.Text,
		InvoiceData:           fields,
		StorageID:             upload.StorageID,
		RecognitionConfidence: recognition.Confidence,
		FileName:              assetName(asset),
		FileSizeBytes:         upload.SizeBytes,
		Timestamp:             p.timeSource.Now().UTC().Format(time.RFC3339),
	}
}

func assetName(asset ImageAsset) string {
	if asset.Filename != "" {
		return asset.Filename
	}
	if u, err := url.Parse(asset.URL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return ""
}
