package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Provider is the outbound vision-model API consumed by the alt-text service.
type Provider interface {
	// CallModel performs one chat-completion round trip for a single model
	// within the given time budget.
	CallModel(ctx context.Context, prompt, apiKey, model string, timeout time.Duration, imageDataURL string) (*ChatResponse, error)
	// CallWithFallback tries each model in order and returns the first
	// success. Intermediate failures are logged, only the last one surfaces.
	CallWithFallback(ctx context.Context, prompt, apiKey string, models []string, timeout time.Duration, imageDataURL string) (*ChatResponse, error)
}

// ChatResponse mirrors the OpenRouter chat-completions response body.
type ChatResponse struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Created  int64    `json:"created"`
	Choices  []Choice `json:"choices"`
	Usage    *Usage   `json:"usage"`

	// Raw keeps the exact upstream payload for persistence.
	Raw json.RawMessage `json:"-"`
}

// Choice is one returned completion.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Message holds the assistant turn of a choice.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content accepts both response shapes: a plain string or a list of typed
// parts. Multi-part text segments are kept in order.
type Content struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of a multi-part message content list.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part list: %w", err)
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// Usage carries upstream token accounting. Cost is reported by OpenRouter
// in credits with sub-cent precision.
type Usage struct {
	PromptTokens     *int     `json:"prompt_tokens"`
	CompletionTokens *int     `json:"completion_tokens"`
	TotalTokens      *int     `json:"total_tokens"`
	Cost             *float64 `json:"cost"`
}

// DataURL encodes image bytes as a base64 data URL for inline transmission.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/*"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
