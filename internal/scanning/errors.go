package scanning

import "fmt"

// Reason classifies a recognition failure.
type Reason string

const (
	ReasonEngineInit       Reason = "engine_init"
	ReasonUnsupportedImage Reason = "unsupported_image"
	ReasonImageUnavailable Reason = "image_unavailable"
	ReasonTimeout          Reason = "timeout"
	ReasonEngineFailure    Reason = "engine_failure"
)

// RecognitionError is returned for every failed recognition.
type RecognitionError struct {
	Reason Reason
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("recognition failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("recognition failed (%s, %s): %v", e.Engine, e.Reason, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
