package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTokenSealer_EncryptDecryptRoundTrip(t *testing.T) {
	sealer, err := NewTokenSealerFromString("ledger-test-key", WithKeyID("ledger-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	plaintext := []byte("eyJhbGciOiJSUzI1NiJ9.edr-token")
	sealed, err := sealer.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("expected sealed payload to hide the token")
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected envelope prefix")
	}
	metadata, err := ParseEnvelopeMetadata(sealed)
	if err != nil || metadata.KeyID != "ledger-v1" || metadata.Version != 3 {
		t.Fatalf("unexpected metadata %#v %v", metadata, err)
	}

	opened, err := sealer.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(opened))
	}

	again, _ := sealer.Encrypt(context.Background(), plaintext)
	if bytes.Equal(again, sealed) {
		t.Fatalf("expected a fresh nonce per encryption")
	}
}

func TestTokenSealer_RejectsUnknownKeysAndTampering(t *testing.T) {
	issuer, _ := NewTokenSealerFromString("ledger-test-key", WithKeyID("ledger-v1"))
	receiver, _ := NewTokenSealerFromString("ledger-test-key", WithKeyID("ledger-v2"))

	sealed, err := issuer.Encrypt(context.Background(), []byte("tok-1"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch error")
	}

	other, _ := NewTokenSealerFromString("another-key", WithKeyID("ledger-v1"))
	if _, err := other.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected authentication failure with the wrong key")
	}
	if _, err := issuer.Decrypt(context.Background(), []byte("tok-1")); err == nil || !strings.Contains(err.Error(), "prefix") {
		t.Fatalf("expected plaintext input to be rejected, got %v", err)
	}
	if _, err := NewTokenSealer([]byte("  ")); err == nil {
		t.Fatalf("expected empty key material to be rejected")
	}
}

func TestTokenSealer_OpensRecordsSealedUnderRetiredKey(t *testing.T) {
	old, _ := NewTokenSealerFromString("old-key", WithKeyID("ledger"), WithVersion(1))
	sealed, err := old.Encrypt(context.Background(), []byte("tok-7"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, _ := NewTokenSealerFromString("new-key",
		WithKeyID("ledger"),
		WithVersion(2),
		WithRetiredKey("ledger", 1, []byte("old-key")),
	)
	opened, err := rotated.Decrypt(context.Background(), sealed)
	if err != nil || string(opened) != "tok-7" {
		t.Fatalf("expected retired key to open old record, got %q %v", opened, err)
	}
	resealed, _ := rotated.Encrypt(context.Background(), opened)
	if metadata, _ := ParseEnvelopeMetadata(resealed); metadata.Version != 2 {
		t.Fatalf("expected new records under the current version, got %d", metadata.Version)
	}
}
