// Package provider is the HTTP client for the external transcription
// provider: a multipart dispatch per segment, and either an inline
// synchronous transcript or a providerRequestId the provider will later
// resolve via a webhook callback.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
)

const defaultDispatchTimeout = 5 * time.Minute

type Config struct {
	BaseURL         string
	APIKey          string
	CallbackBaseURL string
	ModelID         string
	LanguageCode    string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultDispatchTimeout},
	}
}

// DispatchResult is the synchronous reply to a segment dispatch: either
// ProviderRequestID is set (the provider will call back later) or Text is
// set (the provider answered inline).
type DispatchResult struct {
	ProviderRequestID string
	Text              string
	LanguageCode      string
}

// Dispatch POSTs one segment's audio bytes to the provider. The webhook
// URL is never passed per-call; it was fixed at construction time from
// config, modeling a preconfigured-callback deployment.
func (c *Client) Dispatch(ctx context.Context, segmentID string, audio io.Reader, contentType string) (*DispatchResult, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	part, err := w.CreateFormFile("file", segmentID+".mp3")
	if err != nil {
		return nil, domain.NewSystemError("failed to build multipart request", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, domain.NewSystemError("failed to copy audio into request", err)
	}

	_ = w.WriteField("model_id", c.cfg.ModelID)
	if c.cfg.LanguageCode != "" {
		_ = w.WriteField("language_code", c.cfg.LanguageCode)
	}
	_ = w.WriteField("webhook", "true")
	_ = w.WriteField("webhook_url", c.cfg.CallbackBaseURL+"/webhooks/provider")

	if err := w.Close(); err != nil {
		return nil, domain.NewSystemError("failed to finalize multipart request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/speech-to-text", body)
	if err != nil {
		return nil, domain.NewSystemError("failed to build dispatch request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalServiceError("transcription provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyProviderStatus(resp.StatusCode, resp.Body)
	}

	var reply struct {
		TaskID       string `json:"task_id"`
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, domain.NewExternalServiceError("transcription provider", fmt.Errorf("malformed response: %w", err))
	}

	return &DispatchResult{
		ProviderRequestID: reply.TaskID,
		Text:              reply.Text,
		LanguageCode:      reply.LanguageCode,
	}, nil
}

func classifyProviderStatus(status int, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 4096))
	detail := fmt.Sprintf("provider status %d: %s", status, string(msg))

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.NewAuthenticationError(detail)
	case status == http.StatusTooManyRequests:
		return domain.NewRateLimitError("transcription provider", 30)
	case status == http.StatusRequestTimeout:
		return domain.NewTimeoutError("transcription provider dispatch", fmt.Errorf("%s", detail))
	case status >= 500:
		return domain.NewExternalServiceError("transcription provider", fmt.Errorf("%s", detail))
	case status >= 400:
		return domain.NewValidationError(detail, map[string]any{"statusCode": status})
	default:
		return domain.NewExternalServiceError("transcription provider", fmt.Errorf("%s", detail))
	}
}
