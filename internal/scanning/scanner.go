package scanning

import "context"

// BoundingBox locates recognized text in pixel coordinates, origin top-left.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Segment is a recognized word, line or block.
type Segment struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"` // 0-100
	BoundingBox BoundingBox `json:"boundingBox"`
}

// Result contains the output of one recognition call
type Result struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"` // 0-100
	Words      []Segment `json:"words"`
	Lines      []Segment `json:"lines"`
	Blocks     []Segment `json:"blocks"`
}

// Image references the input of a recognition call. Data is used when
// present, otherwise the image is fetched from URL.
type Image struct {
	URL      string
	Data     []byte
	MimeType string
}

// ProgressFunc receives recognition progress as a percentage.
type ProgressFunc func(percent float64)

// Engine defines the recognition capability
type Engine interface {
	// Name identifies the engine in logs and errors
	Name() string
	// Acquire creates a worker configured for one run
	Acquire(ctx context.Context, cfg Config) (Worker, error)
	// Close releases engine-wide resources
	Close() error
}

// Worker is the engine's working context for one run. It is not safe for
// concurrent use.
type Worker interface {
	// Recognize converts PNG image data into text and geometry
	Recognize(ctx context.Context, png []byte, progress ProgressFunc) (*Result, error)
	// Close releases the worker
	Close() error
}
