package core

import (
	"strings"
	"testing"
)

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"consumer_id":         "consumer-1",
		"transfer_process_id": "tp-1",
		"token_fingerprint":   "abc123",
		"authorization":       "tok-1",
		"x-api-key":           "SomeOtherApiKey",
		"nested":              map[string]any{"access_token": "refresh", "agreement_id": "agr-1"},
		"events":              []any{map[string]any{"api_key": "key_1"}, map[string]any{"state": "STARTED"}},
	})

	if redacted["consumer_id"] != "consumer-1" || redacted["transfer_process_id"] != "tp-1" {
		t.Fatalf("expected traceability ids to remain visible")
	}
	if redacted["token_fingerprint"] != "abc123" {
		t.Fatalf("expected fingerprint to remain visible, got %#v", redacted["token_fingerprint"])
	}
	authorization, _ := redacted["authorization"].(string)
	if !strings.HasPrefix(authorization, RedactedValue) || strings.Contains(authorization, "tok-1") {
		t.Fatalf("expected authorization to be redacted, got %q", authorization)
	}
	if !strings.Contains(authorization, TokenFingerprint("tok-1")) {
		t.Fatalf("expected redacted value to keep the fingerprint, got %q", authorization)
	}
	nested := redacted["nested"].(map[string]any)
	if nested["agreement_id"] != "agr-1" || !strings.HasPrefix(nested["access_token"].(string), RedactedValue) {
		t.Fatalf("unexpected nested redaction %#v", nested)
	}
	events := redacted["events"].([]any)
	if !strings.HasPrefix(events[0].(map[string]any)["api_key"].(string), RedactedValue) {
		t.Fatalf("expected api key in list to be redacted")
	}
}

func TestTokenFingerprintAndDescribeToken(t *testing.T) {
	fp := TokenFingerprint("tok-1")
	if len(fp) != 12 {
		t.Fatalf("expected 12 hex characters, got %q", fp)
	}
	if fp != TokenFingerprint("tok-1") || fp == TokenFingerprint("tok-2") {
		t.Fatalf("expected stable, distinct fingerprints")
	}
	if got := DescribeToken("tok-1"); got != "fp="+fp+" len=5" {
		t.Fatalf("unexpected description %q", got)
	}
	if TokenFingerprint("") != "" || DescribeToken("") != "fp=<none> len=0" {
		t.Fatalf("expected empty token handling")
	}
}
