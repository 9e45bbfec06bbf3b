// Package provider holds the prompt and parsing helpers shared by the AI
// creative providers. Each provider speaks its own wire protocol but all
// of them ask for the same JSON shape and parse it the same way.
package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adpulse/adpulse/internal/domain"
)

const DefaultVariants = 3

// SystemPrompt instructs the model to answer with machine-readable JSON
// only; everything else downstream depends on that.
const SystemPrompt = `You are an expert performance-marketing copywriter.
Respond with JSON only, in the shape {"variants":[{"headline":"...","body":"...","cta":"..."}]}.
Headlines are at most 40 characters, bodies at most 125 characters, CTAs at most 20 characters.`

// UserPrompt renders the creative brief for the model.
func UserPrompt(req domain.CreativeRequest) string {
	variants := req.Variants
	if variants <= 0 {
		variants = DefaultVariants
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d ad copy variants.\nProduct: %s\nTarget audience: %s\n", variants, req.Product, req.Audience)
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	if req.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", req.Platform)
	}
	return b.String()
}

type variantsPayload struct {
	Variants []domain.CreativeVariant `json:"variants"`
}

// ParseVariants extracts the variants array from a model response. Models
// occasionally wrap the JSON in prose or fences, so parsing starts at the
// first brace and ends at the last.
func ParseVariants(content string) ([]domain.CreativeVariant, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", domain.ErrProviderError)
	}

	var payload variantsPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}
	if len(payload.Variants) == 0 {
		return nil, fmt.Errorf("%w: empty variants", domain.ErrProviderError)
	}

	return payload.Variants, nil
}
