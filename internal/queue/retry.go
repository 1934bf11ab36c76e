package queue

import (
	"errors"
	"strings"

	"github.com/transcribebridge/bridge/internal/domain"
)

var retryableSubstrings = []string{
	"connection refused",
	"timeout",
	"too many requests",
	"rate limit",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

var nonRetryableSubstrings = []string{
	"file not found",
}

// classifyError decides whether an error that surfaced from a job
// execution should be retried. An *domain.AppError is classified
// exhaustively on its Category; anything else (bare transport/HTTP
// errors bubbled up from a dependency we don't fully control) falls back
// to substring matching against known-retryable/known-fatal phrases,
// which is the one place substring matching on upstream error text is
// the correct tool (§7, §10).
func classifyError(err error) bool {
	if err == nil {
		return false
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}

	msg := strings.ToLower(err.Error())
	for _, s := range nonRetryableSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
