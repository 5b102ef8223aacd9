package vision

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Parsed holds the fields extracted from a chat response for persistence.
// Missing upstream fields stay at their zero values; parsing never fails on
// a well-formed-but-sparse response.
type Parsed struct {
	AltText          string
	ResponseID       string
	Provider         string
	Model            string
	FinishReason     string
	CreatedAt        *time.Time
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Cost             *decimal.Decimal
}

// Parse extracts relevant fields from the first returned choice.
func Parse(resp *ChatResponse) Parsed {
	parsed := Parsed{}
	if resp == nil {
		return parsed
	}

	parsed.ResponseID = resp.ID
	parsed.Provider = resp.Provider
	parsed.Model = resp.Model

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		parsed.AltText = contentText(choice.Message.Content)
		parsed.FinishReason = choice.FinishReason
	}

	if resp.Usage != nil {
		parsed.PromptTokens = resp.Usage.PromptTokens
		parsed.CompletionTokens = resp.Usage.CompletionTokens
		parsed.TotalTokens = resp.Usage.TotalTokens
		if resp.Usage.Cost != nil {
			cost := decimal.NewFromFloat(*resp.Usage.Cost).Round(6)
			parsed.Cost = &cost
		}
	}

	if resp.Created > 0 {
		created := time.Unix(resp.Created, 0)
		parsed.CreatedAt = &created
	}

	return parsed
}

func contentText(content Content) string {
	if content.Parts == nil {
		return strings.TrimSpace(content.Text)
	}
	segments := make([]string, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part.Type == "text" && part.Text != "" {
			segments = append(segments, part.Text)
		}
	}
	return strings.TrimSpace(strings.Join(segments, "\n"))
}
