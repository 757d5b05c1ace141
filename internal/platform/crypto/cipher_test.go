package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepay/internal/platform/metrics"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"), nil)
	assert.Error(t, err)
}

func TestEncryptionRoundTrip(t *testing.T) {
	c, err := New(testKey(7), nil)
	require.NoError(t, err)

	values := []string{
		"a",
		"123-45-6789",
		"exactly sixteen!",
		"contains: a colon",
		"ünïcödé 名前",
		strings.Repeat("x", 1000),
	}
	for _, value := range values {
		envelope, err := c.EncryptField(value)
		require.NoError(t, err)
		assert.True(t, IsEnvelope(envelope), envelope)
		if len(value) > 4 {
			assert.NotContains(t, envelope, value)
		}
		assert.Equal(t, value, c.DecryptField(envelope))
	}
}

func TestEncryptRejectsNonText(t *testing.T) {
	c, err := New(testKey(7), nil)
	require.NoError(t, err)

	_, err = c.EncryptField("123-45-\xff\xfe")
	assert.ErrorIs(t, err, ErrNotText)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c, err := New(testKey(7), nil)
	require.NoError(t, err)

	a, err := c.EncryptField("123-45-6789")
	require.NoError(t, err)
	b, err := c.EncryptField("123-45-6789")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyStaysEmpty(t *testing.T) {
	c, err := New(testKey(7), nil)
	require.NoError(t, err)
	envelope, err := c.EncryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", envelope)
	assert.Equal(t, "", c.DecryptField(""))
}

func TestLegacyPlaintextPassthrough(t *testing.T) {
	c, err := New(testKey(7), nil)
	require.NoError(t, err)
	assert.Equal(t, "not-an-envelope", c.DecryptField("not-an-envelope"))
}

func TestDecryptionFailuresUsePlaceholder(t *testing.T) {
	m := metrics.New()
	c, err := New(testKey(7), m)
	require.NoError(t, err)
	other, err := New(testKey(9), nil)
	require.NoError(t, err)

	foreign, err := other.EncryptField("123-45-6789")
	require.NoError(t, err)

	inputs := []string{
		"zz:zz",
		"00:00",
		strings.Repeat("0", 32) + ":abc",
		strings.Repeat("0", 32) + ":" + strings.Repeat("0", 30),
		foreign,
	}
	failures := 0
	for _, input := range inputs {
		got := c.DecryptField(input)
		// A foreign key can, rarely, still yield valid padding; it never
		// yields the original text.
		assert.NotEqual(t, "123-45-6789", got)
		if got == DecryptionFailedPlaceholder {
			failures++
		}
	}
	assert.GreaterOrEqual(t, failures, len(inputs)-1)
	assert.Equal(t, float64(failures), testutil.ToFloat64(m.DecryptionFailures))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "•••• 6789", Mask("123-45-6789", 4))
	assert.Equal(t, "•••• 4321", Mask("0001 2345 4321", 4))
	assert.Equal(t, "•••• 34", Mask("1234", 4))
	assert.Equal(t, "••••", Mask("1", 4))
	assert.Equal(t, "", Mask("", 4))
}
