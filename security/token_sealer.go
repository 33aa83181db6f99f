// Package security seals credential tokens before they reach the ledger.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-dataspace/core"
)

type Option func(*TokenSealer)

type sealingKey struct {
	id      string
	version int
	key     []byte
}

// TokenSealer encrypts tokens with AES-GCM under the current key and opens
// envelopes written under the current or any retired key.
type TokenSealer struct {
	current sealingKey
	retired map[string]sealingKey
	random  io.Reader
}

func WithKeyID(id string) Option {
	return func(sealer *TokenSealer) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			sealer.current.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(sealer *TokenSealer) {
		if version > 0 {
			sealer.current.version = version
		}
	}
}

// WithRetiredKey keeps an older key available for opening existing records.
func WithRetiredKey(id string, version int, material []byte) Option {
	return func(sealer *TokenSealer) {
		trimmed := bytes.TrimSpace(material)
		id = strings.TrimSpace(id)
		if id == "" || len(trimmed) == 0 {
			return
		}
		sealer.retired[retiredKey(id, version)] = sealingKey{id: id, version: version, key: normalizeKey(trimmed)}
	}
}

func NewTokenSealer(keyMaterial []byte, opts ...Option) (*TokenSealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	sealer := &TokenSealer{
		current: sealingKey{id: "ledger-key", version: 1, key: normalizeKey(key)},
		retired: map[string]sealingKey{},
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(sealer)
	}
	return sealer, nil
}

func NewTokenSealerFromString(key string, opts ...Option) (*TokenSealer, error) {
	return NewTokenSealer([]byte(key), opts...)
}

func (s *TokenSealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: token sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(s.current.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return encodeEnvelope(envelope{
		KeyID:      s.current.id,
		Version:    s.current.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	})
}

func (s *TokenSealer) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: token sealer is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := s.keyFor(parsed)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeBase64("nonce", parsed.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := decodeBase64("ciphertext payload", parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key.key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (s *TokenSealer) keyFor(parsed envelope) (sealingKey, error) {
	if parsed.KeyID == s.current.id && (parsed.Version == 0 || parsed.Version == s.current.version) {
		return s.current, nil
	}
	if key, ok := s.retired[retiredKey(parsed.KeyID, parsed.Version)]; ok {
		return key, nil
	}
	return sealingKey{}, fmt.Errorf("security: no key for kid %q version %d", parsed.KeyID, parsed.Version)
}

func (s *TokenSealer) Metadata() (string, int) {
	if s == nil {
		return "", 0
	}
	return s.current.id, s.current.version
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func retiredKey(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*TokenSealer)(nil)
