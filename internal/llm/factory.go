package llm

import (
	"context"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
)

// New creates the extractor selected by cfg.Model.Provider. Hosted
// backends are wrapped in a shared rate limiter.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Extractor, error) {
	m := cfg.Model
	switch m.Provider {
	case config.ProviderOllama:
		log.Info("Using Ollama model %s at %s", m.ID, m.URL)
		return NewOllama(m.URL, m.ID, m.Timeout, log), nil
	case config.ProviderOpenAI:
		if m.APIKey == "" {
			return nil, errs.Configurationf("model", "MODEL_API_KEY or OPENAI_API_KEY is required for the openai provider")
		}
		log.Info("Using OpenAI model %s", m.ID)
		return WithRateLimit(NewOpenAI(m.APIKey, m.URL, m.ID, log), NewLimiter(cfg.RateLimit, log)), nil
	case config.ProviderGemini:
		if m.APIKey == "" {
			return nil, errs.Configurationf("model", "MODEL_API_KEY or GEMINI_API_KEY is required for the gemini provider")
		}
		g, err := NewGemini(ctx, m.APIKey, m.ID, log)
		if err != nil {
			return nil, err
		}
		log.Info("Using Gemini model %s", m.ID)
		return WithRateLimit(g, NewLimiter(cfg.RateLimit, log)), nil
	default:
		return nil, errs.Configurationf("model", "unknown model provider %q", m.Provider)
	}
}
