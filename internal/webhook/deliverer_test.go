package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir()+"/test.log", logger.LevelDebug, false)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return l
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(DelivererConfig{SigningSecret: "s3cr3t", MaxAttempts: 5, TimeoutSeconds: 5}, testLogger(t))
	result := d.Deliver(context.Background(), "task-1", srv.URL, &domain.WebhookPayload{TaskID: "task-1"})

	if result.FinalStatus != "delivered" {
		t.Fatalf("expected delivered, got %s", result.FinalStatus)
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(result.Attempts))
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(DelivererConfig{SigningSecret: "s3cr3t", MaxAttempts: 5, TimeoutSeconds: 5}, testLogger(t))
	result := d.Deliver(context.Background(), "task-1", srv.URL, &domain.WebhookPayload{TaskID: "task-1"})

	if result.FinalStatus != "delivered" {
		t.Fatalf("expected eventual delivery within attempt budget, got %s", result.FinalStatus)
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(result.Attempts))
	}
}

func TestDeliverExhaustsRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeliverer(DelivererConfig{SigningSecret: "s3cr3t", MaxAttempts: 3, TimeoutSeconds: 5}, testLogger(t))
	result := d.Deliver(context.Background(), "task-1", srv.URL, &domain.WebhookPayload{TaskID: "task-1"})

	if result.FinalStatus != "failed" {
		t.Fatalf("expected failed after exhausting retries, got %s", result.FinalStatus)
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(result.Attempts))
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"taskId":"task-1"}`)
	sig := Sign("my-secret", body)

	if !Verify("my-secret", body, sig) {
		t.Fatal("expected verify to succeed against the same body and secret")
	}

	tampered := []byte(`{"taskId":"task-2"}`)
	if Verify("my-secret", tampered, sig) {
		t.Fatal("expected verify to fail against a tampered body")
	}
}

func TestBackoffMonotonicIgnoringJitter(t *testing.T) {
	prev := 0
	for k := 2; k <= 5; k++ {
		base := 1000 * (1 << (k - 2))
		if base > 60000 {
			base = 60000
		}
		if base < prev {
			t.Fatalf("backoff base not monotonic at attempt %d: %d < %d", k, base, prev)
		}
		prev = base
	}
}
