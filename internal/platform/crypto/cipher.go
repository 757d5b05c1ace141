// Package crypto encrypts individual PII fields for storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"carepay/internal/platform/metrics"
)

// DecryptionFailedPlaceholder replaces a field that could not be decrypted.
const DecryptionFailedPlaceholder = "[decryption failed]"

const envelopeSeparator = ":"

var errMalformed = errors.New("malformed envelope")

// ErrNotText is returned for plaintext that is not valid UTF-8. Decryption
// treats such output as a wrong-key result, so it is never stored.
var ErrNotText = errors.New("field value is not valid UTF-8")

// Cipher is AES-256-CBC with PKCS#7 padding and a random IV per call.
// Envelopes are hex(iv) + ":" + hex(ciphertext).
type Cipher struct {
	block   cipher.Block
	metrics *metrics.Metrics
	rand    io.Reader
}

func New(key []byte, m *metrics.Metrics) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("field cipher needs a 32-byte key, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block, metrics: m, rand: rand.Reader}, nil
}

// EncryptField returns the envelope for plaintext. The empty string stays
// empty so optional columns need no special casing.
func (c *Cipher) EncryptField(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if !utf8.ValidString(plaintext) {
		return "", ErrNotText
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + envelopeSeparator + hex.EncodeToString(out), nil
}

// DecryptField never fails the caller. Values without a separator are legacy
// plaintext and come back unchanged; anything else that cannot be decrypted
// becomes DecryptionFailedPlaceholder.
func (c *Cipher) DecryptField(value string) string {
	if !strings.Contains(value, envelopeSeparator) {
		return value
	}
	plain, err := c.decrypt(value)
	if err != nil {
		c.metrics.RecordDecryptionFailure()
		return DecryptionFailedPlaceholder
	}
	return plain
}

func (c *Cipher) decrypt(value string) (string, error) {
	ivHex, ctHex, _ := strings.Cut(value, envelopeSeparator)
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", errMalformed
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", errMalformed
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errMalformed
	}
	return string(plain), nil
}

// IsEnvelope reports whether value looks like an encrypted field.
func IsEnvelope(value string) bool {
	ivHex, ctHex, ok := strings.Cut(value, envelopeSeparator)
	if !ok || len(ivHex) != 2*aes.BlockSize || len(ctHex) == 0 {
		return false
	}
	_, err := hex.DecodeString(ivHex)
	return err == nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errMalformed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
