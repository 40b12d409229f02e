package invoice

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Stage is the position of a run in the pipeline
type Stage int

const (
	StageIdle Stage = iota
	StageUploading
	StageRecognizing
	StageSubmitting
	StageComplete
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:        "idle",
	StageUploading:   "uploading",
	StageRecognizing: "recognizing",
	StageSubmitting:  "submitting",
	StageComplete:    "complete",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText encodes the stage by name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Mode selects the stage sequence of a run
type Mode int

const (
	// ModeFull uploads, recognizes and submits
	ModeFull Mode = iota
	// ModeLocal only recognizes; a deliberate offline mode, not a fallback
	ModeLocal
)

func (m Mode) String() string {
	if m == ModeLocal {
		return "local"
	}
	return "full"
}

// transitions lists the single successor of each stage per mode.
// StageFailed is reachable from every non-terminal stage.
var transitions = map[Mode]map[Stage]Stage{
	ModeFull: {
		StageIdle:        StageUploading,
		StageUploading:   StageRecognizing,
		StageRecognizing: StageSubmitting,
		StageSubmitting:  StageComplete,
	},
	ModeLocal: {
		StageIdle:        StageRecognizing,
		StageRecognizing: StageComplete,
	},
}

// CanTransition reports whether a run in mode may move from one stage to another
func CanTransition(mode Mode, from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	next, ok := transitions[mode][from]
	return ok && next == to
}

// Progress is a single progress event. Stage and percent always belong together.
type Progress struct {
	RunID   string  `json:"runId"`
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
}

// Observer receives progress events. It is called synchronously and must not
// block for long.
type Observer func(Progress)

// Run tracks one pipeline execution
type Run struct {
	ID   string
	Mode Mode

	mu         sync.Mutex
	stage      Stage
	percent    float64
	err        error
	stageStart time.Time
	observer   Observer
	onStageEnd func(Stage, time.Duration)
}

func newRun(id string, mode Mode, observer Observer) *Run {
	return &Run{
		ID:         id,
		Mode:       mode,
		stage:      StageIdle,
		stageStart: time.Now(),
		observer:   observer,
	}
}

// Stage returns the current stage
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Percent returns progress within the current stage
func (r *Run) Percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.percent
}

// Err returns the failure of a failed run
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// advance moves the run to the next stage and resets percent to zero.
func (r *Run) advance(to Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !CanTransition(r.Mode, r.stage, to) {
		return fmt.Errorf("illegal stage transition %s -> %s in %s mode", r.stage, to, r.Mode)
	}

	now := time.Now()
	if r.stage != StageIdle && r.onStageEnd != nil {
		r.onStageEnd(r.stage, now.Sub(r.stageStart))
	}
	r.stage = to
	r.percent = 0
	r.stageStart = now
	r.emit()
	return nil
}

// report records progress for stage. Reports for a stage the run has left,
// and reports lower than the current percent, are dropped.
func (r *Run) report(stage Stage, percent float64) {
	switch {
	case math.IsNaN(percent) || percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage != stage || percent <= r.percent {
		return
	}
	r.percent = percent
	r.emit()
}

// fail moves the run to StageFailed and returns err.
func (r *Run) fail(err error) error {
	if advErr := r.advance(StageFailed); advErr != nil {
		return err
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	return err
}

// emit must be called with r.mu held so observers see events in order.
func (r *Run) emit() {
	if r.observer == nil {
		return
	}
	r.observer(Progress{RunID: r.ID, Stage: r.stage, Percent: r.percent})
}
