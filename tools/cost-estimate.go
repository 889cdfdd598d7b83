package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/docextract/internal/cost"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/operations"
)

type CostEstimateQuery struct {
	Locator string `json:"locator" jsonschema:"local path, http(s) URL, s3://bucket/key or zotero:<itemKey>"`
}

type CostEstimateResponse struct {
	WordCount       int     `json:"word_count"`
	EstimatedTokens int     `json:"input_tokens"`
	Cost            float64 `json:"input_cost"`
	Display         string  `json:"input_cost_display"`
	RatePerMillion  float64 `json:"rate_per_million"`
}

func CostEstimateTool() *mcp.Tool {
	inputschema, err := jsonschema.For[CostEstimateQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "cost-estimate",
		Description: "Estimate the input cost of running a document through the extraction model. The document is fetched and converted to text, words are counted, tokens are approximated at 1000 tokens per 750 words, and the tiered price table is applied. No model is called.",
		InputSchema: inputschema,
	}
}

func CostEstimateToolHandler(ctx context.Context, req *mcp.CallToolRequest, query CostEstimateQuery, fetcher operations.DocumentFetcher, pricing cost.Pricing, log logger.Logger) (*mcp.CallToolResult, *CostEstimateResponse, error) {
	log.Info("cost-estimate tool called for %s", query.Locator)
	if query.Locator == "" {
		return nil, nil, errMissingLocator
	}

	est, err := operations.EstimateCost(ctx, fetcher, pricing, query.Locator)
	if err != nil {
		log.Error("cost-estimate tool failed: %v", err)
		return nil, nil, err
	}

	return nil, &CostEstimateResponse{
		WordCount:       est.WordCount,
		EstimatedTokens: est.EstimatedTokens,
		Cost:            est.Cost,
		Display:         est.Display(),
		RatePerMillion:  est.Tier.RatePerMillion,
	}, nil
}
