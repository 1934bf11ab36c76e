package queue

import (
	"errors"
	"testing"

	"github.com/transcribebridge/bridge/internal/domain"
)

func TestClassifyErrorAppErrorCategories(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"external service", domain.NewExternalServiceError("provider", errors.New("boom")), true},
		{"rate limit", domain.NewRateLimitError("provider", 30), true},
		{"circuit open", domain.NewCircuitOpenError("provider"), true},
		{"timeout", domain.NewTimeoutError("dispatch", errors.New("boom")), true},
		{"database", domain.NewDatabaseError("update", errors.New("boom")), true},
		{"authentication", domain.NewAuthenticationError("bad key"), false},
		{"authorization", domain.NewAuthorizationError("forbidden"), false},
		{"validation", domain.NewValidationError("bad input", nil), false},
		{"not found", domain.NewNotFoundError("segment", "x"), false},
		{"business logic", domain.NewBusinessLogicError("nope", nil), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyError(tc.err); got != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, got)
			}
		})
	}
}

func TestClassifyErrorSubstringFallback(t *testing.T) {
	cases := []struct {
		msg       string
		retryable bool
	}{
		{"dial tcp: connection refused", true},
		{"context deadline exceeded: timeout", true},
		{"429 too many requests", true},
		{"502 bad gateway", true},
		{"file not found on disk", false},
		{"completely unrelated error", false},
	}

	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			if got := classifyError(errors.New(tc.msg)); got != tc.retryable {
				t.Fatalf("classifyError(%q) = %v, want %v", tc.msg, got, tc.retryable)
			}
		})
	}
}

func TestBackoffMonotonicUpToCap(t *testing.T) {
	cfg := DefaultConfig()
	prev := cfg.nextDelay(1)
	for k := 2; k <= 8; k++ {
		d := cfg.nextDelay(k)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", k, d, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("backoff exceeded cap at attempt %d: %v > %v", k, d, cfg.MaxDelay)
		}
		prev = d
	}
}
