package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"alt-text-server/internal/domain/vision"
	"alt-text-server/internal/infrastructure/metrics"
	"alt-text-server/internal/utils/apperrors"
)

// Config controls the outbound OpenRouter connection.
type Config struct {
	BaseURL string
	// CABundle is an optional PEM file path overriding the system trust
	// root. Some deployments sit behind an intercepting proxy that requires
	// it; empty means default system trust.
	CABundle string
	// Referer and Title are OpenRouter's identifying headers.
	Referer string
	Title   string
}

// Client implements the vision.Provider interface against the OpenRouter
// chat-completions API.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

// NewClient creates a Resty-backed client. Per-call time budgets come from
// the caller; the client itself carries no request timeout.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json")
	if cfg.Referer != "" {
		httpClient.SetHeader("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		httpClient.SetHeader("X-Title", cfg.Title)
	}
	if cfg.CABundle != "" {
		httpClient.SetRootCertificate(cfg.CABundle)
	}
	return &Client{
		httpClient: httpClient,
		log:        log.With().Str("component", "openrouter-client").Logger(),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// CallModel posts one prompt/image pair to /chat/completions for a single
// model within the given time budget.
func (c *Client) CallModel(ctx context.Context, prompt, apiKey, model string, timeout time.Duration, imageDataURL string) (*vision.ChatResponse, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL}},
				},
			},
		},
	}

	started := time.Now()
	resp, err := c.httpClient.R().
		SetContext(callCtx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		if isTimeout(err) {
			metrics.VisionCallsTotal.WithLabelValues(model, "timeout").Inc()
			return nil, apperrors.Wrap(apperrors.KindTimeout, "vision call exceeded time budget", err)
		}
		metrics.VisionCallsTotal.WithLabelValues(model, "error").Inc()
		return nil, apperrors.Wrap(apperrors.KindUpstream, "vision call transport failure", err)
	}
	metrics.VisionCallDuration.WithLabelValues(model).Observe(time.Since(started).Seconds())

	if resp.IsError() {
		c.log.Error().
			Int("status", resp.StatusCode()).
			Str("model", model).
			Str("response", resp.String()).
			Msg("OpenRouter request failed")
		metrics.VisionCallsTotal.WithLabelValues(model, "error").Inc()
		return nil, apperrors.Newf(apperrors.KindUpstream, "vision api returned %d: %s", resp.StatusCode(), resp.String())
	}

	raw := resp.Body()
	var completion vision.ChatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		metrics.VisionCallsTotal.WithLabelValues(model, "error").Inc()
		return nil, apperrors.Wrap(apperrors.KindUpstream, "decode vision api response", err)
	}
	completion.Raw = json.RawMessage(raw)

	metrics.VisionCallsTotal.WithLabelValues(model, "success").Inc()
	return &completion, nil
}

// CallWithFallback tries each model in the given order, left to right, and
// returns the first success. If all fail, the last encountered error is
// surfaced; earlier errors are logged only.
func (c *Client) CallWithFallback(ctx context.Context, prompt, apiKey string, models []string, timeout time.Duration, imageDataURL string) (*vision.ChatResponse, error) {
	if len(models) == 0 {
		return nil, apperrors.New(apperrors.KindConfiguration, "model order is empty, nothing to try")
	}

	var lastErr error
	for i, model := range models {
		c.log.Info().
			Int("attempt", i+1).
			Int("total", len(models)).
			Str("model", model).
			Msg("calling vision model")
		resp, err := c.CallModel(ctx, prompt, apiKey, model, timeout, imageDataURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Str("model", model).
			Msg("vision call failed, trying next model if available")
	}
	return nil, lastErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Ensure interface compliance.
var _ vision.Provider = (*Client)(nil)
