// Package keyring owns the symmetric key protecting stored password hashes.
// The key is resolved once per process: an explicit environment secret wins,
// then a previously persisted key file, and only then is a fresh key
// generated and persisted.
package keyring

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required length of the encryption key in bytes.
	KeySize = chacha20poly1305.KeySize

	// EnvKey names the environment variable holding an externally supplied
	// key, base64 (standard encoding) of exactly KeySize raw bytes.
	EnvKey = "SLUICE_ENCRYPTION_KEY"

	keyFileName = "sluice.key"
)

// ErrMalformedKey indicates externally supplied key material that cannot be
// used. This is fatal: silently generating a fresh key would strand every
// hash already encrypted under the intended one.
var ErrMalformedKey = errors.New("malformed encryption key material")

// resolveMu serializes the check-then-generate-and-persist sequence so that
// concurrent first use cannot produce two different keys or a torn key file.
var resolveMu sync.Mutex

// Keyring holds the resolved key and the AEAD built from it.
type Keyring struct {
	key  []byte
	aead cipher.AEAD
}

// New builds a Keyring from raw key material.
func New(key []byte) (*Keyring, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedKey, len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	k := &Keyring{key: make([]byte, KeySize), aead: aead}
	copy(k.key, key)
	return k, nil
}

// Resolve returns the process encryption key. Resolution order:
//
//  1. EnvKey environment variable (malformed value is a fatal error, never
//     a fallback)
//  2. the persisted key file under dataDir
//  3. a freshly generated key, persisted before it is handed out
func Resolve(dataDir string) (*Keyring, error) {
	resolveMu.Lock()
	defer resolveMu.Unlock()

	if env := os.Getenv(EnvKey); env != "" {
		raw, err := base64.StdEncoding.DecodeString(env)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not valid base64: %v", ErrMalformedKey, EnvKey, err)
		}
		return New(raw)
	}

	path := filepath.Join(dataDir, keyFileName)
	if raw, err := os.ReadFile(path); err == nil {
		return New(raw)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	// Persist before returning: a crash after data was encrypted with an
	// in-memory-only key would make that data unrecoverable.
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("persist key file: %w", err)
	}

	return New(key)
}

// KeyFilePath returns the location of the persisted key blob under dataDir.
func KeyFilePath(dataDir string) string {
	return filepath.Join(dataDir, keyFileName)
}

// Seal encrypts plaintext, prefixing a random nonce to the ciphertext.
func (k *Keyring) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+k.aead.Overhead())
	out = append(out, nonce...)
	out = append(out, k.aead.Seal(nil, nonce, plaintext, nil)...)
	return out, nil
}

// Open decrypts a blob produced by Seal.
func (k *Keyring) Open(blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed blob too short")
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return k.aead.Open(nil, nonce, ct, nil)
}

// SessionSecret derives an independent signing key for session tokens via
// HKDF-SHA256 so that token signing never uses the storage key directly.
func (k *Keyring) SessionSecret() []byte {
	r := hkdf.New(sha256.New, k.key, nil, []byte("sluice/session-signing"))
	secret := make([]byte, KeySize)
	if _, err := r.Read(secret); err != nil {
		// HKDF with valid parameters cannot fail to produce KeySize bytes.
		panic(err)
	}
	return secret
}

// Fingerprint returns a short identifier for the key, safe to display.
func (k *Keyring) Fingerprint() string {
	sum := sha256.Sum256(k.key)
	return hex.EncodeToString(sum[:4])
}
