// Package webhook signs and delivers outbound client notifications, and
// verifies inbound provider callbacks. The two signature schemes are
// separate functions — Sign/Verify for outbound, VerifyInbound for
// inbound — with different header formats and signed messages, so a
// signature made under one never verifies under the other. Verify and
// VerifyInbound share a Go signature, so the compiler does not catch a
// swapped call.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Sign computes the outbound X-Webhook-Signature value for body, in the
// `sha256=<hex>` form.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks an outbound-style `sha256=<hex>` signature against body
// using a constant-time comparison.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyInbound checks the provider's `t=<unix>,v0=<hex>` signature, where
// the signed message is `<t>.<body>` — NOT the same scheme as Sign/Verify.
func VerifyInbound(secret string, body []byte, header string) bool {
	t, v0, ok := parseInboundHeader(header)
	if !ok {
		return false
	}

	signed := fmt.Sprintf("%s.%s", t, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(expected) != len(v0) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(v0))
}

func parseInboundHeader(header string) (timestamp, v0 string, ok bool) {
	parts := strings.Split(header, ",")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v0":
			v0 = kv[1]
		}
	}
	if timestamp == "" || v0 == "" {
		return "", "", false
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		return "", "", false
	}
	return timestamp, v0, true
}
