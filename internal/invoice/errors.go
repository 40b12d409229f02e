package invoice

import (
	"errors"
	"fmt"

	"github.com/zombor/invoice-scan/internal/extraction"
	"github.com/zombor/invoice-scan/internal/scanning"
)

// ValidationError is returned before any stage starts when the input is unusable
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid image: " + e.Reason
}

// UploadError is returned when the image store fails
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading image: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// RecognitionError is returned when the recognition stage fails
type RecognitionError = scanning.RecognitionError

// SubmissionError is returned when the ingestion backend fails. It carries
// everything computed before submission so only the submission needs retrying.
type SubmissionError struct {
	Err         error
	Recognition *scanning.Result
	Fields      extraction.Fields
	Upload      *Upload
	Payload     Payload
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting invoice: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage a pipeline error belongs to. Stage errors are
// checked before validation errors, since a stage may reject downloaded data
// with the same checks used up front. Bare validation errors belong to StageIdle.
func StageOf(err error) (Stage, bool) {
	var (
		validationErr  *ValidationError
		uploadErr      *UploadError
		recognitionErr *RecognitionError
		submissionErr  *SubmissionError
	)
	switch {
	case errors.As(err, &submissionErr):
		return StageSubmitting, true
	case errors.As(err, &recognitionErr):
		return StageRecognizing, true
	case errors.As(err, &uploadErr):
		return StageUploading, true
	case errors.As(err, &validationErr):
		return StageIdle, true
	}
	return StageFailed, false
}
