package drive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation.
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// scryptKeyLen is the derived key length in bytes.
	scryptKeyLen = 32

	// sealSaltLen is the per-file random salt length in bytes.
	sealSaltLen = 16
)

// sealMagic prefixes sealed credentials files so plain JSON credentials
// can be told apart from encrypted ones.
var sealMagic = []byte("DSYNC1")

// deriveKey derives a 32-byte encryption key from passphrase and salt
// using scrypt. The passphrase is normalized to NFKC first so the same
// passphrase typed on different platforms derives the same key.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

// zeroKey overwrites key material after use.
func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// IsSealed reports whether data looks like a sealed credentials file.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

// SealCredentials encrypts plaintext under a passphrase-derived key.
// Output layout: magic || salt(16) || nonce(12) || ciphertext+tag.
func SealCredentials(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, sealSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// OpenCredentials decrypts a sealed credentials file.
func OpenCredentials(data []byte, passphrase string) ([]byte, error) {
	if !IsSealed(data) {
		return nil, fmt.Errorf("not a sealed credentials file")
	}
	data = data[len(sealMagic):]

	if len(data) < sealSaltLen {
		return nil, fmt.Errorf("sealed credentials file truncated")
	}
	salt, data := data[:sealSaltLen], data[sealSaltLen:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed credentials file truncated")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting credentials (wrong passphrase?): %w", err)
	}

	return plaintext, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}
