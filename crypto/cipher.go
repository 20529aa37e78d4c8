package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrCryptoFailure indicates an encryption or decryption operation failed.
var ErrCryptoFailure = errors.New("crypto failure")

// NonceSize is the size of the nonce prepended to every ciphertext.
const NonceSize = 24

// Cipher is the symmetric encrypt/decrypt capability consumed by the content
// store. Implementations must produce ciphertexts that authenticate their
// contents; a tampered ciphertext fails to decrypt rather than yielding
// garbage plaintext.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SecretBoxCipher encrypts with a single NaCl secretbox key. The ciphertext
// layout is nonce || box.
type SecretBoxCipher struct {
	key [32]byte
}

// NewSecretBoxCipher creates a cipher around the given key.
func NewSecretBoxCipher(key [32]byte) *SecretBoxCipher {
	return &SecretBoxCipher{key: key}
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *SecretBoxCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *SecretBoxCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonce, box, err := splitNonce(ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, ok := secretbox.Open(nil, box, &nonce, &c.key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed", ErrCryptoFailure)
	}
	return plaintext, nil
}

func generateNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}
	return nonce, nil
}

func splitNonce(ciphertext []byte) ([NonceSize]byte, []byte, error) {
	var nonce [NonceSize]byte
	if len(ciphertext) < NonceSize {
		return nonce, nil, fmt.Errorf("%w: ciphertext too short", ErrCryptoFailure)
	}
	copy(nonce[:], ciphertext[:NonceSize])
	return nonce, ciphertext[NonceSize:], nil
}
