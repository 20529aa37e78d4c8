package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the PBKDF2 work factor for deriving the master key.
	pbkdf2Iterations = 100000
	saltSize         = 32

	keysFileName = "encryption_keys.json"
	saltFileName = ".salt"
)

// KeyStore manages the node's symmetric payload keys. Keys are versioned so
// rotation keeps old ciphertexts decryptable, and the key file is encrypted
// at rest with an AES-GCM key derived from a master password via PBKDF2.
//
// KeyStore implements Cipher: Encrypt always uses the current key version;
// Decrypt tries the current version first and falls back to older ones.
type KeyStore struct {
	mu      sync.Mutex
	dir     string
	master  [32]byte
	keys    map[int][32]byte
	current int
	log     *logrus.Logger
}

// NewKeyStore opens or initializes the key store under dir. An empty master
// password is tolerated with a warning so single-user setups keep working,
// but it downgrades the at-rest protection to obfuscation.
func NewKeyStore(dir string, masterPassword []byte, log *logrus.Logger) (*KeyStore, error) {
	if len(masterPassword) == 0 {
		log.Warn("No master password set, key file protection is weakened")
		masterPassword = []byte("default-insecure-password")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	ks := &KeyStore{
		dir:  dir,
		keys: make(map[int][32]byte),
		log:  log,
	}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("initialize salt: %w", err)
	}
	derived := pbkdf2.Key(masterPassword, salt, pbkdf2Iterations, 32, sha256.New)
	copy(ks.master[:], derived)

	if _, err := os.Stat(ks.keysPath()); err == nil {
		if err := ks.load(); err != nil {
			return nil, err
		}
		return ks, nil
	}

	if _, err := ks.rotateLocked(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *KeyStore) keysPath() string { return filepath.Join(ks.dir, keysFileName) }
func (ks *KeyStore) saltPath() string { return filepath.Join(ks.dir, saltFileName) }

func (ks *KeyStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(ks.saltPath())
	if err == nil && len(data) == saltSize {
		return data, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(ks.saltPath(), salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// keyFile is the decrypted shape of the persisted key material.
type keyFile struct {
	Current int               `json:"current"`
	Keys    map[string]string `json:"keys"`
}

// CurrentVersion returns the version Encrypt is using.
func (ks *KeyStore) CurrentVersion() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.current
}

// Rotate generates a new current key version and persists the store. Older
// versions are retained so existing ciphertexts remain readable.
func (ks *KeyStore) Rotate() (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.rotateLocked()
}

func (ks *KeyStore) rotateLocked() (int, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return 0, fmt.Errorf("generate key: %w", err)
	}

	version := ks.current + 1
	ks.keys[version] = key
	ks.current = version

	if err := ks.saveLocked(); err != nil {
		delete(ks.keys, version)
		ks.current = version - 1
		return 0, err
	}

	ks.log.WithField("version", version).Info("Generated new encryption key")
	return version, nil
}

// Encrypt seals plaintext with the current key version.
func (ks *KeyStore) Encrypt(plaintext []byte) ([]byte, error) {
	ks.mu.Lock()
	key, ok := ks.keys[ks.current]
	ks.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no current key", ErrCryptoFailure)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key), nil
}

// Decrypt opens a ciphertext with the newest key version that fits.
func (ks *KeyStore) Decrypt(ciphertext []byte) ([]byte, error) {
	nonce, box, err := splitNonce(ciphertext)
	if err != nil {
		return nil, err
	}

	ks.mu.Lock()
	versions := make([]int, 0, len(ks.keys))
	for v := range ks.keys {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	keys := make([][32]byte, 0, len(versions))
	for _, v := range versions {
		keys = append(keys, ks.keys[v])
	}
	ks.mu.Unlock()

	for i := range keys {
		if plaintext, ok := secretbox.Open(nil, box, &nonce, &keys[i]); ok {
			return plaintext, nil
		}
	}
	return nil, fmt.Errorf("%w: no key version opens ciphertext", ErrCryptoFailure)
}

// saveLocked writes the key file, encrypted with the derived master key.
func (ks *KeyStore) saveLocked() error {
	kf := keyFile{
		Current: ks.current,
		Keys:    make(map[string]string, len(ks.keys)),
	}
	for version, key := range ks.keys {
		kf.Keys[strconv.Itoa(version)] = base64.StdEncoding.EncodeToString(key[:])
	}

	plaintext, err := json.Marshal(kf)
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}

	sealed, err := ks.sealWithMaster(plaintext)
	if err != nil {
		return err
	}

	if err := os.WriteFile(ks.keysPath(), sealed, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (ks *KeyStore) load() error {
	sealed, err := os.ReadFile(ks.keysPath())
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	plaintext, err := ks.openWithMaster(sealed)
	if err != nil {
		return fmt.Errorf("decrypt key file (wrong master password?): %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(plaintext, &kf); err != nil {
		return fmt.Errorf("decode key file: %w", err)
	}

	for versionStr, encoded := range kf.Keys {
		version, err := strconv.Atoi(versionStr)
		if err != nil {
			return fmt.Errorf("decode key version %q: %w", versionStr, err)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("decode key material for version %d", version)
		}
		var key [32]byte
		copy(key[:], raw)
		ks.keys[version] = key
	}
	ks.current = kf.Current

	if _, ok := ks.keys[ks.current]; !ok {
		return fmt.Errorf("key file current version %d has no key material", ks.current)
	}

	ks.log.WithFields(logrus.Fields{
		"versions": len(ks.keys),
		"current":  ks.current,
	}).Info("Loaded encryption keys")
	return nil
}

func (ks *KeyStore) sealWithMaster(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(ks.master[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (ks *KeyStore) openWithMaster(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(ks.master[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("key file too short")
	}
	nonce, box := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, box, nil)
}
