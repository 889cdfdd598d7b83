package llm

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/models"
)

// OpenAI extracts with the hosted Responses API.
type OpenAI struct {
	client openai.Client
	model  string
	log    logger.Logger
}

// NewOpenAI creates an OpenAI backend. baseURL may point at any
// Responses-compatible endpoint.
func NewOpenAI(apiKey, baseURL, model string, log logger.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		log:    log,
	}
}

// Extract implements Extractor.
func (o *OpenAI) Extract(ctx context.Context, req Request) ([]models.Extraction, error) {
	params := responses.ResponseNewParams{
		Model:       shared.ResponsesModel(o.model),
		Input:       responses.ResponseNewParamsInputUnion{OfString: openai.String(BuildPrompt(req))},
		Temperature: openai.Float(req.Temperature),
	}
	if req.UseSchemaConstraints {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema("extractions", ResponseSchema(req.Examples)),
		}
	}

	response, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, errs.ModelCall("openai "+o.model, err)
	}
	outputText := response.OutputText()
	o.log.Debug("OpenAI returned %d bytes", len(outputText))
	return DecodeOutput(outputText)
}
