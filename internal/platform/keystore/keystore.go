// Package keystore provides the field-encryption data key. The key is sealed
// on disk under a wrapping secret held in OS-native secure storage; there is
// no fallback when that storage is unavailable.
package keystore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	KeyLength = 32

	SealedFileName = "field.key.sealed"
	LegacyFileName = "field.key"

	wrappingSecretUser = "field-key-wrapping-secret"
	hkdfInfo           = "carepay field key seal v1"
)

var ErrKeyUnavailable = errors.New("encryption key unavailable")

// KeyUnavailableError is fatal at startup. It covers unreachable OS storage
// as well as missing or corrupt key material.
type KeyUnavailableError struct {
	Reason string
	Err    error
}

func (e *KeyUnavailableError) Error() string {
	if e.Err == nil {
		return "encryption key unavailable: " + e.Reason
	}
	return fmt.Sprintf("encryption key unavailable: %s: %v", e.Reason, e.Err)
}

func (e *KeyUnavailableError) Unwrap() error { return e.Err }

func (e *KeyUnavailableError) Is(target error) bool { return target == ErrKeyUnavailable }

// Backend is OS-native secret storage. Get returns keyring.ErrNotFound for a
// missing secret.
type Backend interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
}

// KeyringBackend stores secrets in the macOS Keychain, Windows Credential
// Manager or the Linux Secret Service.
type KeyringBackend struct{}

func (KeyringBackend) Get(service, user string) (string, error) { return keyring.Get(service, user) }

func (KeyringBackend) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

type Store struct {
	dir     string
	service string
	backend Backend
	rand    io.Reader

	mu  sync.Mutex
	key []byte
}

func New(dir, service string, backend Backend) *Store {
	if backend == nil {
		backend = KeyringBackend{}
	}
	return &Store{dir: dir, service: service, backend: backend, rand: rand.Reader}
}

func (s *Store) SealedPath() string { return filepath.Join(s.dir, SealedFileName) }

func (s *Store) LegacyPath() string { return filepath.Join(s.dir, LegacyFileName) }

// Available checks that the OS store answers. A missing secret still counts as available.
func (s *Store) Available() error {
	_, err := s.backend.Get(s.service, wrappingSecretUser)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return &KeyUnavailableError{Reason: "os secure storage unreachable", Err: err}
}

// GetOrCreateKey returns the 256-bit data key, unsealing the existing key
// file or generating and sealing a new one. The result is cached for the
// lifetime of the Store.
func (s *Store) GetOrCreateKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return cloneKey(s.key), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := s.wrappingSecret()
	if err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(s.SealedPath())
	switch {
	case err == nil:
		if secret == nil {
			return nil, &KeyUnavailableError{Reason: "sealed key exists but its wrapping secret is missing"}
		}
		key, err := s.unseal(secret, sealed)
		if err != nil {
			return nil, err
		}
		s.removeLegacy()
		s.key = key
		return cloneKey(key), nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, &KeyUnavailableError{Reason: "read sealed key", Err: err}
	}

	if secret == nil {
		secret, err = s.createWrappingSecret()
		if err != nil {
			return nil, err
		}
	}

	key, imported, err := s.legacyOrNewKey()
	if err != nil {
		return nil, err
	}
	if err := s.seal(secret, key); err != nil {
		return nil, err
	}
	if imported {
		slog.Info("legacy plaintext key file sealed", "path", s.SealedPath())
	} else {
		slog.Info("generated field encryption key", "path", s.SealedPath())
	}
	s.removeLegacy()
	s.key = key
	return cloneKey(key), nil
}

// wrappingSecret returns nil, nil when the OS store is reachable but holds no
// secret yet.
func (s *Store) wrappingSecret() ([]byte, error) {
	encoded, err := s.backend.Get(s.service, wrappingSecretUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &KeyUnavailableError{Reason: "os secure storage unreachable", Err: err}
	}
	secret, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(secret) != KeyLength {
		return nil, &KeyUnavailableError{Reason: "wrapping secret is corrupt", Err: err}
	}
	return secret, nil
}

func (s *Store) createWrappingSecret() ([]byte, error) {
	secret := make([]byte, KeyLength)
	if _, err := io.ReadFull(s.rand, secret); err != nil {
		return nil, &KeyUnavailableError{Reason: "generate wrapping secret", Err: err}
	}
	if err := s.backend.Set(s.service, wrappingSecretUser, hex.EncodeToString(secret)); err != nil {
		return nil, &KeyUnavailableError{Reason: "store wrapping secret", Err: err}
	}
	return secret, nil
}

func (s *Store) legacyOrNewKey() ([]byte, bool, error) {
	raw, err := os.ReadFile(s.LegacyPath())
	if err == nil {
		key, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil || len(key) != KeyLength {
			return nil, false, &KeyUnavailableError{Reason: "legacy key file is corrupt", Err: decodeErr}
		}
		return key, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, &KeyUnavailableError{Reason: "read legacy key file", Err: err}
	}
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(s.rand, key); err != nil {
		return nil, false, &KeyUnavailableError{Reason: "generate key", Err: err}
	}
	return key, false, nil
}

func sealingAEAD(secret []byte) (cipher.AEAD, error) {
	kek := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), kek); err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(kek)
}

func (s *Store) seal(secret, key []byte) error {
	aead, err := sealingAEAD(secret)
	if err != nil {
		return &KeyUnavailableError{Reason: "derive sealing key", Err: err}
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return &KeyUnavailableError{Reason: "generate nonce", Err: err}
	}
	sealed := aead.Seal(nonce, nonce, key, []byte(SealedFileName))

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return &KeyUnavailableError{Reason: "create key directory", Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, SealedFileName+".*")
	if err != nil {
		return &KeyUnavailableError{Reason: "write sealed key", Err: err}
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return &KeyUnavailableError{Reason: "write sealed key", Err: err}
	}
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		return &KeyUnavailableError{Reason: "write sealed key", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &KeyUnavailableError{Reason: "write sealed key", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.SealedPath()); err != nil {
		return &KeyUnavailableError{Reason: "write sealed key", Err: err}
	}
	return nil
}

func (s *Store) unseal(secret, sealed []byte) ([]byte, error) {
	aead, err := sealingAEAD(secret)
	if err != nil {
		return nil, &KeyUnavailableError{Reason: "derive sealing key", Err: err}
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, &KeyUnavailableError{Reason: "sealed key file is truncated"}
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ciphertext, []byte(SealedFileName))
	if err != nil {
		return nil, &KeyUnavailableError{Reason: "sealed key file failed authentication", Err: err}
	}
	if len(key) != KeyLength {
		return nil, &KeyUnavailableError{Reason: fmt.Sprintf("sealed key has %d bytes, want %d", len(key), KeyLength)}
	}
	return key, nil
}

func (s *Store) removeLegacy() {
	err := os.Remove(s.LegacyPath())
	if err == nil {
		slog.Info("removed legacy plaintext key file", "path", s.LegacyPath())
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not remove legacy plaintext key file", "path", s.LegacyPath(), "err", err)
	}
}

func cloneKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}
