package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Engine interface using a local Tesseract install
type Tesseract struct {
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a new Tesseract Engine instance
func NewTesseract() *Tesseract {
	return &Tesseract{clientFactory: gosseract.NewClient}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Acquire creates a dedicated gosseract client configured for one run
func (t *Tesseract) Acquire(ctx context.Context, cfg Config) (Worker, error) {
	client := t.clientFactory()

	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting languages: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(pageSegMode(cfg.SegmentationMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting segmentation mode: %w", err)
	}

	return &tesseractWorker{client: client}, nil
}

// Close is a no-op; clients are released per worker
func (t *Tesseract) Close() error {
	return nil
}

func pageSegMode(mode SegmentationMode) gosseract.PageSegMode {
	if mode == SegmentSingleBlock {
		return gosseract.PSM_SINGLE_BLOCK
	}
	return gosseract.PSM_AUTO
}

type tesseractWorker struct {
	client *gosseract.Client
}

func (w *tesseractWorker) Recognize(ctx context.Context, png []byte, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := w.client.SetImageFromBytes(png); err != nil {
		return nil, &RecognitionError{Reason: ReasonUnsupportedImage, Err: fmt.Errorf("set image: %w", err)}
	}
	progress(10)

	// Tesseract initializes lazily, so init failures surface here
	text, err := w.client.Text()
	if err != nil {
		if strings.Contains(err.Error(), "initialize") {
			return nil, &RecognitionError{Reason: ReasonEngineInit, Err: err}
		}
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	progress(60)

	words, err := w.segments(gosseract.RIL_WORD)
	if err != nil {
		return nil, err
	}
	progress(80)

	lines, err := w.segments(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}
	progress(90)

	blocks, err := w.segments(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, err
	}
	progress(100)

	return &Result{
		Text:       text,
		Confidence: meanConfidence(words),
		Words:      words,
		Lines:      lines,
		Blocks:     blocks,
	}, nil
}

func (w *tesseractWorker) segments(level gosseract.PageIteratorLevel) ([]Segment, error) {
	boxes, err := w.client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("reading bounding boxes: %w", err)
	}
	segments := make([]Segment, 0, len(boxes))
	for _, b := range boxes {
		segments = append(segments, Segment{
			Text:       strings.TrimSpace(b.Word),
			Confidence: b.Confidence,
			BoundingBox: BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}
	return segments, nil
}

func (w *tesseractWorker) Close() error {
	return w.client.Close()
}

func meanConfidence(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += s.Confidence
	}
	return sum / float64(len(segments))
}
