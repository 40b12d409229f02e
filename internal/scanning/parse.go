package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// transcription is the JSON shape requested from LLM-backed engines
type transcription struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseTranscriptionJSON parses the JSON transcription returned by an LLM engine
func parseTranscriptionJSON(text string) (*Result, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data transcription
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	// Models without a confidence estimate get a neutral midpoint
	confidence := 50.0
	if data.Confidence != nil {
		confidence = clampPercent(*data.Confidence)
	}

	result := &Result{
		Text:       data.Text,
		Confidence: confidence,
		Words:      []Segment{},
		Lines:      []Segment{},
		Blocks:     []Segment{},
	}

	// No geometry is available, so lines carry text and the overall confidence only
	for _, line := range strings.Split(data.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result.Lines = append(result.Lines, Segment{Text: line, Confidence: confidence})
		}
	}
	if strings.TrimSpace(data.Text) != "" {
		result.Blocks = append(result.Blocks, Segment{Text: strings.TrimSpace(data.Text), Confidence: confidence})
	}

	return result, nil
}
