// Package cost approximates the language-model input cost of a text.
//
// Token counts are derived from a fixed calibration of 750 words per 1000
// tokens. This is a heuristic, not a tokenizer; changing it changes every
// estimate the tool has ever printed.
package cost

import (
	"fmt"
	"io"
	"strings"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
)

const (
	calibrationWords  = 750
	calibrationTokens = 1000

	DefaultThresholdTokens = 200_000
	DefaultBaseRate        = 1.25
	DefaultUpperRate       = 2.50
)

// Pricing is a tiered price table. Tiers are ordered by ascending
// threshold and the last tier is unbounded.
type Pricing struct {
	Tiers []models.Tier
}

// DefaultPricing returns the stock two-tier table.
func DefaultPricing() Pricing {
	return TwoTier(DefaultThresholdTokens, DefaultBaseRate, DefaultUpperRate)
}

// TwoTier builds a table with a single step at threshold tokens.
func TwoTier(threshold int, baseRate, upperRate float64) Pricing {
	return Pricing{Tiers: []models.Tier{
		{Threshold: threshold, RatePerMillion: baseRate},
		{Threshold: 0, RatePerMillion: upperRate},
	}}
}

// Validate rejects tables that would make cost non-monotonic or undefined.
func (p Pricing) Validate() error {
	if len(p.Tiers) == 0 {
		return errs.Configurationf("pricing", "no pricing tiers configured")
	}
	prev := 0
	for i, tier := range p.Tiers {
		if tier.RatePerMillion < 0 {
			return errs.Configurationf("pricing", "tier %d has negative rate %v", i, tier.RatePerMillion)
		}
		if i > 0 && tier.RatePerMillion < p.Tiers[i-1].RatePerMillion {
			return errs.Configurationf("pricing", "tier %d rate %v is lower than tier %d", i, tier.RatePerMillion, i-1)
		}
		last := i == len(p.Tiers)-1
		if last {
			if tier.Threshold != 0 {
				return errs.Configurationf("pricing", "last tier must be unbounded, got threshold %d", tier.Threshold)
			}
			continue
		}
		if tier.Threshold <= prev {
			return errs.Configurationf("pricing", "tier %d threshold %d must be positive and ascending", i, tier.Threshold)
		}
		prev = tier.Threshold
	}
	return nil
}

// TierFor returns the tier the whole token count is priced at.
func (p Pricing) TierFor(tokens int) models.Tier {
	for _, tier := range p.Tiers {
		if tier.Threshold == 0 || tokens < tier.Threshold {
			return tier
		}
	}
	return p.Tiers[len(p.Tiers)-1]
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateTokens applies the words-to-tokens calibration, rounding down.
func EstimateTokens(words int) int {
	return words * calibrationTokens / calibrationWords
}

// Estimate computes the cost estimate for text. The pricing table is
// assumed valid.
func (p Pricing) Estimate(text string) models.CostEstimate {
	words := WordCount(text)
	tokens := EstimateTokens(words)
	tier := p.TierFor(tokens)
	return models.CostEstimate{
		WordCount:       words,
		EstimatedTokens: tokens,
		Tier:            tier,
		Cost:            float64(tokens) * tier.RatePerMillion / 1_000_000,
	}
}

// Format prints the three-line report.
func Format(w io.Writer, est models.CostEstimate) error {
	_, err := fmt.Fprintf(w, "word count: %d\ninput tokens: %d\ninput cost: %s\n",
		est.WordCount, est.EstimatedTokens, est.Display())
	return err
}
