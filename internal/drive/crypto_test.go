package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plain := []byte(`{"refresh_token": "secret"}`)

	sealed, err := SealCredentials(plain, "correct horse")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, string(sealed), "secret")

	opened, err := OpenCredentials(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, plain, opened)
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := SealCredentials([]byte("data"), "right")
	require.NoError(t, err)

	_, err = OpenCredentials(sealed, "wrong")
	assert.ErrorContains(t, err, "decrypting credentials")
}

func TestOpenRejectsUnsealedInput(t *testing.T) {
	_, err := OpenCredentials([]byte(`{"plain": "json"}`), "pass")
	assert.ErrorContains(t, err, "not a sealed credentials file")
}

func TestOpenTruncatedInput(t *testing.T) {
	sealed, err := SealCredentials([]byte("data"), "pass")
	require.NoError(t, err)

	_, err = OpenCredentials(sealed[:len(sealMagic)+4], "pass")
	assert.ErrorContains(t, err, "truncated")
}

func TestIsSealed(t *testing.T) {
	assert.False(t, IsSealed([]byte(`{"client_id": "x"}`)))
	assert.False(t, IsSealed(nil))
	assert.True(t, IsSealed(append(append([]byte{}, sealMagic...), 0x00)))
}

func TestSealUniquePerCall(t *testing.T) {
	a, err := SealCredentials([]byte("data"), "pass")
	require.NoError(t, err)
	b, err := SealCredentials([]byte("data"), "pass")
	require.NoError(t, err)

	// Fresh salt and nonce every time.
	assert.NotEqual(t, a, b)
}

func TestPassphraseUnicodeNormalization(t *testing.T) {
	// U+FB01 LATIN SMALL LIGATURE FI normalizes to "fi" under NFKC, so
	// both spellings derive the same key.
	sealed, err := SealCredentials([]byte("data"), "ﬁsh")
	require.NoError(t, err)

	opened, err := OpenCredentials(sealed, "fish")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), opened)
}
