package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
)

func TestOllamaExtract(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"extractions": [{"extraction_class": "audit_finding", "extraction_text": "2024-003", "attributes": {"agency": "USDA"}}]}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "gemma2:2b", 5*time.Second, logger.NewNoOpLogger())
	out, err := o.Extract(context.Background(), Request{
		Text:                 "Reference 2024-003",
		PromptDescription:    "Extract findings.",
		Examples:             auditExamples,
		Temperature:          0,
		UseSchemaConstraints: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2024-003", out[0].Text)
	assert.Equal(t, "USDA", out[0].Attributes["agency"])

	assert.Equal(t, "gemma2:2b", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
	require.NotNil(t, got.Options)
	require.NotNil(t, got.Options.Temperature, "zero temperature must still be sent")
	assert.Equal(t, 0.0, *got.Options.Temperature)
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'gemma2:2b' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma2:2b", 5*time.Second, logger.NewNoOpLogger())
	_, err := o.Extract(context.Background(), Request{Text: "x", PromptDescription: "d"})
	assert.ErrorIs(t, err, errs.ErrModelCall)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "not found")
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	o := NewOllama(url, "", time.Second, logger.NewNoOpLogger())
	_, err := o.Extract(context.Background(), Request{Text: "x", PromptDescription: "d"})
	assert.ErrorIs(t, err, errs.ErrModelCall)
	assert.Error(t, o.Ping(context.Background()))
}

func TestOllamaMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "Sorry, I can't help with that.", Done: true})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma2:2b", 5*time.Second, logger.NewNoOpLogger())
	_, err := o.Extract(context.Background(), Request{Text: "x", PromptDescription: "d"})
	assert.ErrorIs(t, err, errs.ErrModelCall)
}

func TestNewSelectsProvider(t *testing.T) {
	base := func(provider, key string) *config.Config {
		return &config.Config{
			Model:     config.ModelConfig{Provider: provider, ID: "m", APIKey: key, Timeout: time.Second},
			RateLimit: config.RateLimitConfig{TokensPerSecond: 1, Burst: 1},
		}
	}
	log := logger.NewNoOpLogger()

	ext, err := New(context.Background(), base(config.ProviderOllama, ""), log)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, ext)

	ext, err = New(context.Background(), base(config.ProviderOpenAI, "sk-test"), log)
	require.NoError(t, err)
	assert.IsType(t, &rateLimited{}, ext)

	for _, provider := range []string{config.ProviderOpenAI, config.ProviderGemini} {
		_, err = New(context.Background(), base(provider, ""), log)
		assert.ErrorIs(t, err, errs.ErrConfiguration, provider)
	}

	_, err = New(context.Background(), base("llamacpp", ""), log)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestOllamaIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		t.Skip("OLLAMA_HOST not set, skipping integration test")
	}

	o := NewOllama(host, os.Getenv("MODEL_ID"), 2*time.Minute, logger.NewNoOpLogger())
	if err := o.Ping(context.Background()); err != nil {
		t.Skipf("Ollama not reachable: %v", err)
	}
	out, err := o.Extract(context.Background(), Request{
		Text:                 "Reference 2024-003 Federal Agency: U.S. Department of Agriculture",
		PromptDescription:    "Extract the text and labeled attributes of federal award findings.",
		Examples:             auditExamples,
		Temperature:          0.3,
		UseSchemaConstraints: true,
	})
	require.NoError(t, err)
	for _, e := range out {
		assert.NotEmpty(t, e.Class)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	var ext Extractor = NewOllama(srv.URL, "gemma2:2b", time.Second, logger.NewNoOpLogger())
	p, ok := ext.(Pinger)
	require.True(t, ok)
	assert.NoError(t, p.Ping(context.Background()))

	bad := NewOllama(srv.URL+"/missing", "gemma2:2b", time.Second, logger.NewNoOpLogger())
	err := bad.Ping(context.Background())
	assert.ErrorIs(t, err, errs.ErrModelCall)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}
