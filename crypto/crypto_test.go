package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashData(t *testing.T) {
	// Known SHA-256 vector.
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		HashData([]byte("hello")))

	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashData(nil), "empty input hashes to the well-known empty digest")
}

func TestSecretBoxRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	c := NewSecretBoxCipher(key)

	plaintext := []byte("the quick brown fox")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSecretBoxNoncesDiffer(t *testing.T) {
	var key [32]byte
	c := NewSecretBoxCipher(key)

	a, err := c.Encrypt([]byte("same message"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same message"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "every encryption must use a fresh nonce")
}

func TestSecretBoxRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	c := NewSecretBoxCipher(key)

	ciphertext, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = c.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestSecretBoxRejectsShortCiphertext(t *testing.T) {
	var key [32]byte
	c := NewSecretBoxCipher(key)

	_, err := c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestSecretBoxWrongKey(t *testing.T) {
	var key1, key2 [32]byte
	key2[0] = 1

	ciphertext, err := NewSecretBoxCipher(key1).Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = NewSecretBoxCipher(key2).Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestGenerateNodeID(t *testing.T) {
	a := GenerateNodeID()
	b := GenerateNodeID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
