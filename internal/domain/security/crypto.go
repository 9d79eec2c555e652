package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize       = 32
	hkdfInfo      = "payrecon/at-rest/v1"
	blobSeparator = ":"
)

// Sealer encrypts sensitive snapshots kept for audit.
// Blobs have the form base64(iv||tag):base64(ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256-GCM key from secret with HKDF-SHA256.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("%w: secret must be at least 16 bytes", ErrInvalidKey)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// EncryptAtRest serializes v as JSON and seals it.
func (s *Sealer) EncryptAtRest(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - s.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	ivTag := append(append([]byte{}, nonce...), tag...)
	return base64.StdEncoding.EncodeToString(ivTag) + blobSeparator +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptAtRest opens a blob produced by EncryptAtRest into out.
func (s *Sealer) DecryptAtRest(blob string, out any) error {
	head, body, ok := strings.Cut(blob, blobSeparator)
	if !ok {
		return fmt.Errorf("%w: malformed blob", ErrDecryptionFailed)
	}
	ivTag, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return fmt.Errorf("%w: decode iv: %v", ErrDecryptionFailed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return fmt.Errorf("%w: decode ciphertext: %v", ErrDecryptionFailed, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ivTag) != nonceSize+s.aead.Overhead() {
		return fmt.Errorf("%w: bad iv/tag length", ErrDecryptionFailed)
	}
	nonce, tag := ivTag[:nonceSize], ivTag[nonceSize:]

	plaintext, err := s.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return nil
}
