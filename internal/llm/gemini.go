package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/models"
)

// Gemini extracts with the hosted Gemini API.
type Gemini struct {
	client    *genai.Client
	modelName string
	log       logger.Logger
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, apiKey, modelName string, log logger.Logger) (*Gemini, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.ModelCall("gemini client", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &Gemini{client: cl, modelName: modelName, log: log}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Extract implements Extractor.
func (g *Gemini) Extract(ctx context.Context, req Request) ([]models.Extraction, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(float32(req.Temperature))
	if req.UseSchemaConstraints {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = geminiSchema(req.Examples)
	}

	resp, err := m.GenerateContent(ctx, genai.Text(BuildPrompt(req)))
	if err != nil {
		return nil, errs.ModelCall("gemini "+g.modelName, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errs.ModelCall("gemini "+g.modelName, errNoCandidates)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	g.log.Debug("Gemini returned %d bytes", b.Len())
	return DecodeOutput(b.String())
}
