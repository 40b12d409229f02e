package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single engine call.
const DefaultTimeout = 2 * time.Minute

// Adapter bridges the pipeline to a recognition Engine
type Adapter struct {
	engine  Engine
	fetcher Fetcher
	config  Config
	timeout time.Duration
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithConfig sets the engine parameters used by new sessions.
func WithConfig(cfg Config) AdapterOption {
	return func(a *Adapter) { a.config = cfg }
}

// WithFetcher sets how URL-only images are downloaded.
func WithFetcher(f Fetcher) AdapterOption {
	return func(a *Adapter) { a.fetcher = f }
}

// WithTimeout bounds each engine call. Zero disables the bound.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

// NewAdapter creates an Adapter configured for invoice extraction
func NewAdapter(engine Engine, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		engine:  engine,
		fetcher: NewHTTPFetcher(30 * time.Second),
		config:  InvoiceConfig(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the engine parameters used by new sessions.
func (a *Adapter) Config() Config {
	return a.config
}

// Acquire creates a Session holding its own engine worker. The caller must
// Close the session on every path.
func (a *Adapter) Acquire(ctx context.Context) (*Session, error) {
	worker, err := a.engine.Acquire(ctx, a.config)
	if err != nil {
		return nil, a.wrap(ReasonEngineInit, err)
	}
	return &Session{adapter: a, worker: worker}, nil
}

// Recognize acquires a session, recognizes img and releases the session.
func (a *Adapter) Recognize(ctx context.Context, img Image, onProgress ProgressFunc) (*Result, error) {
	session, err := a.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Recognize(ctx, img, onProgress)
}

func (a *Adapter) wrap(reason Reason, err error) *RecognitionError {
	return &RecognitionError{Reason: reason, Engine: a.engine.Name(), Err: err}
}

// classify turns an engine error into a RecognitionError, keeping the
// engine's own classification when it has one.
func (a *Adapter) classify(err error) *RecognitionError {
	var recErr *RecognitionError
	if errors.As(err, &recErr) {
		if recErr.Engine == "" {
			recErr.Engine = a.engine.Name()
		}
		return recErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return a.wrap(ReasonTimeout, err)
	}
	return a.wrap(ReasonEngineFailure, err)
}

func (a *Adapter) resolve(ctx context.Context, img Image) ([]byte, string, error) {
	if len(img.Data) > 0 {
		return img.Data, img.MimeType, nil
	}
	if img.URL == "" {
		return nil, "", errors.New("image has neither data nor url")
	}
	if a.fetcher == nil {
		return nil, "", errors.New("no fetcher configured for image urls")
	}
	data, contentType, err := a.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return nil, "", err
	}
	if img.MimeType != "" {
		contentType = img.MimeType
	}
	return data, contentType, nil
}

// Session is a scoped recognition resource: one worker, released by Close.
type Session struct {
	adapter *Adapter
	worker  Worker

	mu      sync.Mutex
	closed  bool
	pending chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Recognize runs the engine on img. The engine call runs on its own goroutine;
// when the timeout fires the call is abandoned and the worker is released
// once it returns.
func (s *Session) Recognize(ctx context.Context, img Image, onProgress ProgressFunc) (*Result, error) {
	a := s.adapter

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, a.wrap(ReasonEngineFailure, errors.New("session is closed"))
	}
	if s.pending != nil {
		select {
		case <-s.pending:
		default:
			s.mu.Unlock()
			return nil, a.wrap(ReasonEngineFailure, errors.New("session is busy"))
		}
	}
	s.mu.Unlock()

	data, contentType, err := a.resolve(ctx, img)
	if err != nil {
		return nil, a.wrap(ReasonImageUnavailable, err)
	}

	pngData, _, _, err := prepareImageData(data, contentType)
	if err != nil {
		return nil, a.wrap(ReasonUnsupportedImage, err)
	}

	progress := newProgressReporter(onProgress)
	progress.report(0)

	done := make(chan struct{})
	s.mu.Lock()
	s.pending = done
	s.mu.Unlock()

	var (
		result *Result
		runErr error
	)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("engine panic: %v", r)
			}
		}()
		result, runErr = s.worker.Recognize(ctx, pngData, progress.report)
	}()

	var timeout <-chan time.Time
	if a.timeout > 0 {
		timer := time.NewTimer(a.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-timeout:
		progress.stop()
		return nil, a.wrap(ReasonTimeout, fmt.Errorf("no result after %s", a.timeout))
	}

	if runErr != nil {
		progress.stop()
		return nil, a.classify(runErr)
	}
	if result == nil {
		progress.stop()
		return nil, a.wrap(ReasonEngineFailure, errors.New("engine returned no result"))
	}

	result.clamp()
	progress.report(100)
	progress.stop()
	return result, nil
}

// Close releases the worker. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.pending
		s.mu.Unlock()

		if pending != nil {
			select {
			case <-pending:
			default:
				go func() {
					<-pending
					if err := s.worker.Close(); err != nil {
						slog.Warn("Failed to release recognition worker", "engine", s.adapter.engine.Name(), "error", err)
					}
				}()
				return
			}
		}
		s.closeErr = s.worker.Close()
	})
	return s.closeErr
}

// progressReporter forwards clamped, non-decreasing percentages until stopped.
type progressReporter struct {
	mu      sync.Mutex
	fn      ProgressFunc
	last    float64
	emitted bool
	stopped bool
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(percent float64) {
	percent = clampPercent(percent)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fn == nil || p.stopped {
		return
	}
	if p.emitted && percent <= p.last {
		return
	}
	p.last = percent
	p.emitted = true
	p.fn(percent)
}

func (p *progressReporter) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func clampPercent(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func (r *Result) clamp() {
	r.Confidence = clampPercent(r.Confidence)
	for _, segs := range [][]Segment{r.Words, r.Lines, r.Blocks} {
		for i := range segs {
			segs[i].Confidence = clampPercent(segs[i].Confidence)
		}
	}
}
