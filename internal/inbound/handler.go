// Package inbound translates transcription-provider callbacks into
// Segment state changes and triggers the Completion Coordinator.
package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
	"github.com/transcribebridge/bridge/internal/webhook"
)

// Store is the narrow slice of the Task/Segment Store the handler needs.
type Store interface {
	FindSegmentByProviderRequestID(ctx context.Context, requestID string) (*domain.Segment, error)
	UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error
}

// Notifier is invoked after a segment reaches a terminal state.
type Notifier interface {
	OnSegmentTerminal(ctx context.Context, taskID string) error
}

type Config struct {
	// WebhookSecret, when set, is required to verify callback
	// signatures. Empty means dev-mode permissive (log + accept).
	WebhookSecret string
}

type Handler struct {
	store    Store
	notifier Notifier
	cfg      Config
	log      *logger.Logger
}

func New(store Store, notifier Notifier, cfg Config, log *logger.Logger) *Handler {
	return &Handler{store: store, notifier: notifier, cfg: cfg, log: log}
}

// callbackEnvelope mirrors the provider's callback shape (§4.6, §6).
type callbackEnvelope struct {
	Type string `json:"type"`
	Data struct {
		RequestID     string `json:"request_id"`
		Transcription *struct {
			Text         string `json:"text"`
			LanguageCode string `json:"language_code"`
		} `json:"transcription"`
		Error string `json:"error"`
	} `json:"data"`
}

const callbackTypeCompletion = "speech_to_text.completion"

// Handle processes one provider callback. segmentIDHint, when non-empty,
// comes from a `segmentId` query parameter. The segment is always looked
// up by providerRequestId; the hint is only compared against the resolved
// segment and any mismatch is logged. It returns an *domain.AppError for
// the cases that must NOT be swallowed into a 200 (signature failure, a
// malformed body, a body missing data.request_id) — every other outcome,
// including a failed store update or completion notification, is logged
// and returns nil so the provider is never induced to retry (§4.6, §7).
func (h *Handler) Handle(ctx context.Context, body []byte, signatureHeader string, segmentIDHint string) error {
	if h.cfg.WebhookSecret != "" {
		if signatureHeader == "" || !webhook.VerifyInbound(h.cfg.WebhookSecret, body, signatureHeader) {
			return domain.NewAuthenticationError("inbound webhook signature mismatch")
		}
	} else {
		h.log.Warn("inbound webhook: no signing secret configured, accepting callback unverified")
	}

	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.NewValidationError("malformed callback body", map[string]any{"error": err.Error()})
	}

	if envelope.Type != callbackTypeCompletion {
		h.log.Debug("inbound webhook: ignoring unrecognized callback type: %s", logger.Fields("type", envelope.Type))
		return nil
	}
	if envelope.Data.RequestID == "" {
		return domain.NewValidationError("callback missing data.request_id", nil)
	}

	segment, err := h.store.FindSegmentByProviderRequestID(ctx, envelope.Data.RequestID)
	if err != nil {
		h.log.Info("inbound webhook: no segment for providerRequestId, ignoring: %s", logger.Fields(
			"requestId", envelope.Data.RequestID))
		return nil
	}

	if segmentIDHint != "" && segmentIDHint != segment.ID {
		h.log.Warn("inbound webhook: segmentId hint mismatch: %s", logger.Fields(
			"hint", segmentIDHint, "resolved", segment.ID))
	}

	if segment.Status.IsTerminal() {
		h.log.Debug("inbound webhook: duplicate callback for terminal segment: %s", logger.Fields("segmentId", segment.ID))
		return nil
	}

	now := time.Now()

	if envelope.Data.Transcription != nil && envelope.Data.Transcription.Text != "" {
		text := envelope.Data.Transcription.Text
		if err := h.store.UpdateSegment(ctx, segment.ID, domain.SegmentPatch{
			Status:         segmentStatusPtr(domain.SegmentCompleted),
			TranscriptText: &text,
			CompletedAt:    &now,
		}); err != nil {
			h.log.Error("inbound webhook: failed to persist segment completion: %s", logger.Fields(
				"segmentId", segment.ID, "error", err))
			return nil
		}
	} else {
		errMsg := envelope.Data.Error
		if errMsg == "" {
			errMsg = "provider callback carried no transcript"
		}
		if err := h.store.UpdateSegment(ctx, segment.ID, domain.SegmentPatch{
			Status:       segmentStatusPtr(domain.SegmentFailed),
			ErrorMessage: &errMsg,
			CompletedAt:  &now,
		}); err != nil {
			h.log.Error("inbound webhook: failed to persist segment failure: %s", logger.Fields(
				"segmentId", segment.ID, "error", err))
			return nil
		}
	}

	if err := h.notifier.OnSegmentTerminal(ctx, segment.TaskID); err != nil {
		h.log.Error("inbound webhook: completion notification failed: %s", logger.Fields(
			"taskId", segment.TaskID, "error", err))
	}
	return nil
}

func segmentStatusPtr(s domain.SegmentStatus) *domain.SegmentStatus { return &s }
