package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/models"
)

// Ollama default configuration values.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "gemma2:2b"
)

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options *generateOption `json:"options,omitempty"`
}

type generateOption struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Ollama extracts with a local Ollama runtime.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	log     logger.Logger
}

// NewOllama creates an Ollama backend. A zero timeout leaves deadlines to
// the caller's context.
func NewOllama(baseURL, model string, timeout time.Duration, log logger.Logger) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		log:     log,
	}
}

// Extract implements Extractor.
func (o *Ollama) Extract(ctx context.Context, req Request) ([]models.Extraction, error) {
	temp := req.Temperature
	body := generateRequest{
		Model:   o.model,
		Prompt:  BuildPrompt(req),
		Stream:  false,
		Options: &generateOption{Temperature: &temp},
	}
	if req.UseSchemaConstraints {
		body.Format = "json"
	}

	raw, err := o.generate(ctx, body)
	if err != nil {
		return nil, errs.ModelCall("ollama "+o.model, err)
	}
	o.log.Debug("Ollama returned %d bytes", len(raw))
	return DecodeOutput(raw)
}

func (o *Ollama) generate(ctx context.Context, body generateRequest) (string, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Backend: "ollama", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return genResp.Response, nil
}

// Ping checks the runtime is reachable via /api/tags.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return errs.ModelCall("ollama ping", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return errs.ModelCall("ollama ping", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.ModelCall("ollama ping", &StatusError{Backend: "ollama", StatusCode: resp.StatusCode})
	}
	return nil
}
