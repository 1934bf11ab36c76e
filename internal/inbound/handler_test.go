package inbound

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

type fakeStore struct {
	byRequestID map[string]*domain.Segment
}

func (f *fakeStore) FindSegmentByProviderRequestID(ctx context.Context, requestID string) (*domain.Segment, error) {
	seg, ok := f.byRequestID[requestID]
	if !ok {
		return nil, domain.NewNotFoundError("segment", requestID)
	}
	return seg, nil
}

func (f *fakeStore) UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error {
	for _, seg := range f.byRequestID {
		if seg.ID != id {
			continue
		}
		if patch.Status != nil {
			seg.Status = *patch.Status
		}
		if patch.TranscriptText != nil {
			seg.TranscriptText = patch.TranscriptText
		}
		if patch.ErrorMessage != nil {
			seg.ErrorMessage = patch.ErrorMessage
		}
	}
	return nil
}

type fakeNotifier struct {
	calls atomic.Int32
}

func (f *fakeNotifier) OnSegmentTerminal(ctx context.Context, taskID string) error {
	f.calls.Add(1)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir()+"/test.log", logger.LevelDebug, false)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return l
}

func signInbound(secret string, body []byte) string {
	ts := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v0=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestHandleCompletionUpdatesSegmentAndNotifies(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", Status: domain.SegmentProcessing, ProviderRequestID: strPtr("req-1")}
	store := &fakeStore{byRequestID: map[string]*domain.Segment{"req-1": seg}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{}, testLogger(t))

	body := []byte(`{"type":"speech_to_text.completion","data":{"request_id":"req-1","transcription":{"text":"hello world"}}}`)
	if err := h.Handle(context.Background(), body, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seg.Status != domain.SegmentCompleted {
		t.Fatalf("expected segment completed, got %s", seg.Status)
	}
	if seg.TranscriptText == nil || *seg.TranscriptText != "hello world" {
		t.Fatalf("unexpected transcript: %v", seg.TranscriptText)
	}
	if notifier.calls.Load() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.calls.Load())
	}
}

func TestHandleUnknownRequestIDReturns200Equivalent(t *testing.T) {
	store := &fakeStore{byRequestID: map[string]*domain.Segment{}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{}, testLogger(t))

	body := []byte(`{"type":"speech_to_text.completion","data":{"request_id":"unknown","transcription":{"text":"x"}}}`)
	if err := h.Handle(context.Background(), body, "", ""); err != nil {
		t.Fatalf("expected nil error (no-op 200) for unknown requestId, got %v", err)
	}
	if notifier.calls.Load() != 0 {
		t.Fatal("expected no notification for an unknown segment")
	}
}

func TestHandleDuplicateCallbackIsNoOp(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", Status: domain.SegmentCompleted, ProviderRequestID: strPtr("req-1")}
	store := &fakeStore{byRequestID: map[string]*domain.Segment{"req-1": seg}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{}, testLogger(t))

	body := []byte(`{"type":"speech_to_text.completion","data":{"request_id":"req-1","transcription":{"text":"hello again"}}}`)
	if err := h.Handle(context.Background(), body, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.calls.Load() != 0 {
		t.Fatal("expected no notification for a duplicate callback on an already-terminal segment")
	}
}

func TestHandleRejectsBadSignatureWhenConfigured(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", Status: domain.SegmentProcessing, ProviderRequestID: strPtr("req-1")}
	store := &fakeStore{byRequestID: map[string]*domain.Segment{"req-1": seg}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{WebhookSecret: "provider-secret"}, testLogger(t))

	body := []byte(`{"type":"speech_to_text.completion","data":{"request_id":"req-1","transcription":{"text":"x"}}}`)
	err := h.Handle(context.Background(), body, "t=1,v0=deadbeef", "")
	if err == nil {
		t.Fatal("expected a signature-mismatch error")
	}
}

func TestHandleAcceptsGoodSignatureWhenConfigured(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", Status: domain.SegmentProcessing, ProviderRequestID: strPtr("req-1")}
	store := &fakeStore{byRequestID: map[string]*domain.Segment{"req-1": seg}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{WebhookSecret: "provider-secret"}, testLogger(t))

	body := []byte(`{"type":"speech_to_text.completion","data":{"request_id":"req-1","transcription":{"text":"x"}}}`)
	sig := signInbound("provider-secret", body)

	if err := h.Handle(context.Background(), body, sig, ""); err != nil {
		t.Fatalf("unexpected error with a valid signature: %v", err)
	}
}

func TestHandleMalformedBodyRejected(t *testing.T) {
	store := &fakeStore{byRequestID: map[string]*domain.Segment{}}
	notifier := &fakeNotifier{}
	h := New(store, notifier, Config{}, testLogger(t))

	err := h.Handle(context.Background(), []byte("not json"), "", "")
	if err == nil {
		t.Fatal("expected an error for a malformed body")
	}
}

func strPtr(s string) *string { return &s }
