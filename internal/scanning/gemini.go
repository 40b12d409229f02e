package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcriptionPrompt asks the model for a verbatim transcription, not field extraction.
const transcriptionPrompt = `You are an OCR engine reading a photographed or scanned invoice. Transcribe ALL text in the image exactly as printed.

Rules:
- Preserve the reading order and line breaks of the document.
- Do not translate, summarize, correct or reformat values (keep dates, amounts and codes as printed).
- Expected languages: %s.
- Layout hint: %s.
- Only use characters from this set when possible: %s

Return ONLY valid JSON in this exact format:
{
  "text": "full transcription with \n line breaks",
  "confidence": 0
}

"confidence" is your certainty that the transcription is correct, from 0 to 100.
Do not include any text before or after the JSON. Do not use markdown code blocks.`

// Gemini implements the Engine interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a new Gemini Engine instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Acquire creates a model handle configured for one run
func (g *Gemini) Acquire(ctx context.Context, cfg Config) (Worker, error) {
	if g.client == nil {
		return nil, fmt.Errorf("gemini client is closed")
	}
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	layout := "detect the layout automatically"
	if cfg.SegmentationMode == SegmentSingleBlock {
		layout = "treat the page as a single uniform block of text"
	}
	prompt := fmt.Sprintf(transcriptionPrompt, strings.Join(cfg.Languages, ", "), layout, cfg.Whitelist)

	return &geminiWorker{model: model, prompt: prompt}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

type geminiWorker struct {
	model  *genai.GenerativeModel
	prompt string
}

func (w *geminiWorker) Recognize(ctx context.Context, png []byte, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", png),
		genai.Text(w.prompt),
	}
	progress(10)

	resp, err := w.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	progress(90)

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseTranscriptionJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing transcription: %w", err)
	}
	progress(100)

	return result, nil
}

// Close is a no-op; the client is shared by the engine
func (w *geminiWorker) Close() error {
	return nil
}
