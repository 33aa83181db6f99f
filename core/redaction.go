package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const RedactedValue = "[REDACTED]"

const tokenFingerprintLength = 12

// TokenFingerprint returns the first 12 hex characters of the SHA-256 digest
// of token. It identifies a credential in logs without disclosing it.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:tokenFingerprintLength]
}

// DescribeToken renders a token as "fp=<fingerprint> len=<n>".
func DescribeToken(token string) string {
	if token == "" {
		return "fp=<none> len=0"
	}
	return fmt.Sprintf("fp=%s len=%d", TokenFingerprint(token), len(token))
}

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = redactedPlaceholder(value)
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// redactedPlaceholder keeps string secrets correlatable through their
// fingerprint.
func redactedPlaceholder(value any) any {
	if token, ok := value.(string); ok && token != "" {
		return RedactedValue + " " + DescribeToken(token)
	}
	return RedactedValue
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"x-api-key",
		"credential",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "consumer_id",
		"provider_id",
		"asset_id",
		"negotiation_id",
		"agreement_id",
		"transfer_process_id",
		"token_fingerprint",
		"token_length",
		"run_id",
		"request_id":
		return true
	default:
		return false
	}
}
