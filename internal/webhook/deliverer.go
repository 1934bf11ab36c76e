package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/transcribebridge/bridge/internal/breaker"
	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

// DelivererConfig holds the outbound retry schedule (§4.4).
type DelivererConfig struct {
	SigningSecret  string
	MaxAttempts    int
	TimeoutSeconds int
}

// Deliverer POSTs the final task result to the client's callback URL, with
// HMAC authenticity headers and a bounded, jittered retry schedule. Each
// destination URL gets its own circuit breaker so one broken client
// endpoint can't starve retries for every other task.
type Deliverer struct {
	cfg        DelivererConfig
	httpClient *http.Client
	breakers   *breaker.Registry
	log        *logger.Logger
}

func NewDeliverer(cfg DelivererConfig, log *logger.Logger) *Deliverer {
	return &Deliverer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		breakers: breaker.NewRegistry(breaker.Config{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		}),
		log: log,
	}
}

// SetBreakerReporter wires a metrics sink onto every per-destination
// breaker this deliverer holds (and every one it creates from here on).
func (d *Deliverer) SetBreakerReporter(r breaker.Reporter) *Deliverer {
	d.breakers.SetReporter(r)
	return d
}

// Deliver runs the full retry schedule against url and returns the final
// outcome. It never returns an error itself — failure is reported via
// DeliveryResult.FinalStatus, since an outbound delivery failure must not
// change the owning task's own success/failure status (§7).
func (d *Deliverer) Deliver(ctx context.Context, taskID, url string, payload *domain.WebhookPayload) *domain.DeliveryResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.DeliveryResult{
			TaskID:      taskID,
			FinalStatus: "failed",
			Attempts: []domain.DeliveryAttempt{{
				AttemptNumber: 1,
				StartedAt:     time.Now(),
				Error:         fmt.Sprintf("failed to marshal payload: %v", err),
			}},
		}
	}

	signature := Sign(d.cfg.SigningSecret, body)
	cb := d.breakers.Get(url)

	var attempts []domain.DeliveryAttempt
	delivered := false

	for k := 1; k <= d.cfg.MaxAttempts; k++ {
		if k > 1 {
			time.Sleep(retryDelay(k))
		}

		attempt := domain.DeliveryAttempt{AttemptNumber: k, StartedAt: time.Now()}

		err := cb.Execute(func() error {
			return d.attempt(ctx, url, body, signature, k, &attempt)
		})
		attempts = append(attempts, attempt)

		if err == nil && attempt.Success {
			delivered = true
			break
		}

		d.log.Warn("webhook delivery attempt failed: %s", logger.Fields(
			"taskId", taskID, "attempt", k, "error", attempt.Error))
	}

	status := "failed"
	if delivered {
		status = "delivered"
	}
	return &domain.DeliveryResult{TaskID: taskID, FinalStatus: status, Attempts: attempts}
}

func (d *Deliverer) attempt(ctx context.Context, url string, body []byte, signature string, attemptNumber int, out *domain.DeliveryAttempt) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		out.Error = err.Error()
		return domain.NewValidationError("invalid webhook url", map[string]any{"url": url})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TranscribeBridge/1")
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", attemptNumber))
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		out.Error = classifyTransportError(err)
		return domain.NewExternalServiceError("client webhook endpoint", err)
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Success = true
		return nil
	}

	out.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	return domain.NewExternalServiceError("client webhook endpoint", fmt.Errorf("status %d", resp.StatusCode))
}

func classifyTransportError(err error) string {
	if ctxErr := err; ctxErr != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return "timeout"
		}
	}
	return err.Error()
}

// retryDelay returns the delay before attempt k (k >= 2), per §4.4:
// min(1000 * 2^(k-2), 60000) ms, jittered by +/-25% and floored at 1000ms.
func retryDelay(k int) time.Duration {
	base := 1000 * (1 << (k - 2))
	if base > 60000 {
		base = 60000
	}

	jitterFactor := 0.75 + rand.Float64()*0.5 // uniform in [0.75, 1.25]
	delayMs := float64(base) * jitterFactor
	if delayMs < 1000 {
		delayMs = 1000
	}

	return time.Duration(delayMs) * time.Millisecond
}
