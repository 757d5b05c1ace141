package keystore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestGetOrCreateKeyGeneratesAndSeals(t *testing.T) {
	keyring.MockInit()
	dir := filepath.Join(t.TempDir(), "keys")
	store := New(dir, "carepay-test", KeyringBackend{})

	key, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, KeyLength)

	sealed, err := os.ReadFile(store.SealedPath())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, key), "sealed file must not contain the raw key")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.SealedPath())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		dirInfo, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
	}

	reopened := New(dir, "carepay-test", KeyringBackend{})
	again, err := reopened.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestGetOrCreateKeyIsMemoized(t *testing.T) {
	keyring.MockInit()
	store := New(t.TempDir(), "carepay-test", KeyringBackend{})

	first, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(store.SealedPath()))

	second, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	second[0] ^= 0xff
	third, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, third, "callers must not be able to mutate the cached key")
}

func TestUnavailableStorageFailsWithoutFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("secret service not running"))
	t.Cleanup(keyring.MockInit)
	dir := t.TempDir()
	store := New(dir, "carepay-test", KeyringBackend{})

	assert.ErrorIs(t, store.Available(), ErrKeyUnavailable)

	_, err := store.GetOrCreateKey(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	var keyErr *KeyUnavailableError
	require.ErrorAs(t, err, &keyErr)
	assert.Contains(t, keyErr.Error(), "secret service not running")

	_, statErr := os.Stat(store.SealedPath())
	assert.True(t, os.IsNotExist(statErr), "no key file may be written without OS storage")
}

func TestAvailableTreatsMissingSecretAsAvailable(t *testing.T) {
	keyring.MockInit()
	store := New(t.TempDir(), "carepay-empty", KeyringBackend{})
	assert.NoError(t, store.Available())
}

func TestLegacyPlaintextKeyIsImportedAndRemoved(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	legacy := bytes.Repeat([]byte{0xab}, KeyLength)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(hex.EncodeToString(legacy)+"\n"), 0o644))

	store := New(dir, "carepay-test", KeyringBackend{})
	key, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, legacy, key)

	_, err = os.Stat(store.LegacyPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.SealedPath())
	assert.NoError(t, err)
}

func TestLegacyFileRemovedWhenSealedKeyExists(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	first, err := New(dir, "carepay-test", KeyringBackend{}).GetOrCreateKey(context.Background())
	require.NoError(t, err)

	stale := bytes.Repeat([]byte{0x01}, KeyLength)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(hex.EncodeToString(stale)), 0o644))

	store := New(dir, "carepay-test", KeyringBackend{})
	key, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, key)
	_, err = os.Stat(store.LegacyPath())
	assert.True(t, os.IsNotExist(err))
}

func TestShortLegacyKeyIsCorruption(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(hex.EncodeToString([]byte("too-short"))), 0o600))

	_, err := New(dir, "carepay-test", KeyringBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestSealedKeyWithoutWrappingSecretFails(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	_, err := New(dir, "carepay-a", KeyringBackend{}).GetOrCreateKey(context.Background())
	require.NoError(t, err)

	_, err = New(dir, "carepay-b", KeyringBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestTamperedSealedKeyFails(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	store := New(dir, "carepay-test", KeyringBackend{})
	_, err := store.GetOrCreateKey(context.Background())
	require.NoError(t, err)

	sealed, err := os.ReadFile(store.SealedPath())
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	require.NoError(t, os.WriteFile(store.SealedPath(), sealed, 0o600))

	_, err = New(dir, "carepay-test", KeyringBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	require.NoError(t, os.WriteFile(store.SealedPath(), sealed[:10], 0o600))
	_, err = New(dir, "carepay-test", KeyringBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

type failingSetBackend struct{}

func (failingSetBackend) Get(string, string) (string, error) { return "", keyring.ErrNotFound }
func (failingSetBackend) Set(string, string, string) error { return errors.New("locked") }

func TestWrappingSecretWriteFailure(t *testing.T) {
	_, err := New(t.TempDir(), "carepay-test", failingSetBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestCorruptWrappingSecret(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("carepay-test", wrappingSecretUser, "not-hex"))

	_, err := New(t.TempDir(), "carepay-test", KeyringBackend{}).GetOrCreateKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}
