package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func buildInboundHeader(secret string, ts int64, body []byte) string {
	signed := fmt.Sprintf("%d.%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v0=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyInboundAccepts(t *testing.T) {
	body := []byte(`{"type":"speech_to_text.completion"}`)
	header := buildInboundHeader("provider-secret", time.Now().Unix(), body)

	if !VerifyInbound("provider-secret", body, header) {
		t.Fatal("expected a correctly-signed inbound callback to verify")
	}
}

func TestVerifyInboundRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"type":"speech_to_text.completion"}`)
	header := buildInboundHeader("provider-secret", time.Now().Unix(), body)

	if VerifyInbound("provider-secret", []byte(`{"type":"tampered"}`), header) {
		t.Fatal("expected verification to fail for a tampered body")
	}
}

func TestVerifyInboundRejectsMalformedHeader(t *testing.T) {
	if VerifyInbound("secret", []byte("body"), "not-a-valid-header") {
		t.Fatal("expected malformed header to fail verification")
	}
}

func TestInboundAndOutboundSchemesAreNotInterchangeable(t *testing.T) {
	body := []byte(`{"taskId":"task-1"}`)
	outboundSig := Sign("shared-secret", body)

	// An outbound-style signature must never pass inbound verification,
	// proving the two schemes are not accidentally compatible.
	if VerifyInbound("shared-secret", body, outboundSig) {
		t.Fatal("outbound signature format unexpectedly verified as an inbound signature")
	}
}
