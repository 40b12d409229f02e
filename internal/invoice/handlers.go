package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps pipeline errors to status codes. Submission failures keep
// the recognition output in the body so callers do not lose it.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	status := http.StatusInternalServerError

	if stage, ok := StageOf(err); ok {
		body["stage"] = stage
		switch stage {
		case StageIdle:
			status = http.StatusBadRequest
		case StageRecognizing:
			status = http.StatusUnprocessableEntity
		case StageUploading, StageSubmitting:
			status = http.StatusBadGateway
		}
	}

	var submissionErr *SubmissionError
	if errors.As(err, &submissionErr) {
		body["recognition"] = submissionErr.Recognition
		body["fields"] = submissionErr.Fields
		body["upload"] = submissionErr.Upload
	}

	writeJSON(w, status, body)
}

func logProgress(p Progress) {
	slog.Debug("Pipeline progress", "run_id", p.RunID, "stage", p.Stage.String(), "percent", p.Percent)
}

// readAsset builds an ImageAsset from a multipart "file" part or a "url" field
func (s *Server) readAsset(w http.ResponseWriter, r *http.Request) (ImageAsset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ImageAsset{}, &ValidationError{Reason: fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit)}
		}
		return ImageAsset{}, &ValidationError{Reason: fmt.Sprintf("parsing form: %v", err)}
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return ImageAsset{URL: strings.TrimSpace(r.FormValue("url"))}, nil
	}
	if err != nil {
		return ImageAsset{}, &ValidationError{Reason: fmt.Sprintf("reading file: %v", err)}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("reading file data: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename)))
	}

	return ImageAsset{
		Filename: header.Filename,
		Data:     data,
		MimeType: strings.ToLower(strings.TrimSpace(contentType)),
	}, nil
}

// handleScan runs the full pipeline on an uploaded invoice
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	asset, err := s.readAsset(w, r)
	if err != nil {
		slog.Error("Error reading invoice upload", "error", err)
		writeError(w, err)
		return
	}

	result, err := s.pipeline.RunFull(r.Context(), asset, logProgress)
	if err != nil {
		slog.Error("Error scanning invoice", "filename", asset.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleScanLocal recognizes and extracts without uploading or submitting
func (s *Server) handleScanLocal(w http.ResponseWriter, r *http.Request) {
	asset, err := s.readAsset(w, r)
	if err != nil {
		slog.Error("Error reading invoice upload", "error", err)
		writeError(w, err)
		return
	}

	result, err := s.pipeline.RunLocal(r.Context(), asset, logProgress)
	if err != nil {
		slog.Error("Error scanning invoice locally", "filename", asset.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListSubmissions returns all stored submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	submissions, err := s.config.Submissions.ListSubmissions()
	if err != nil {
		slog.Error("Error listing submissions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if submissions == nil {
		submissions = []*Submission{}
	}

	writeJSON(w, http.StatusOK, submissions)
}

// handleGetSubmission returns a single submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.config.Submissions.GetSubmission(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Submission not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, submission)
}

// handleGetImage serves a locally stored upload
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	data, err := s.config.Images.Get(name)
	if err != nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
