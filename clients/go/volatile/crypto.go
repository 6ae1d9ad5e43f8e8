package volatile

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize  = 32
	nonceSize = 12
	keySize   = 32
	tagSize   = 16

	// kdfIterations is fixed: both ends derive the same key from the same
	// password and salt, and the stretch bounds brute-force cost per guess.
	kdfIterations = 210_000

	// minEnvelopeLen is the smallest decodable envelope: all parameters plus
	// at least one ciphertext byte. Anything shorter is rejected before any
	// key derivation happens.
	minEnvelopeLen = saltSize + nonceSize + tagSize + 1

	// maxMediaBytes caps raw media payloads before encoding and encryption.
	maxMediaBytes = 5 << 20
)

// decryptFailedMsg is the single failure message for wrong password,
// tampering, and truncation alike. One shape, no oracle.
const decryptFailedMsg = "decryption failed: wrong password or tampered ciphertext"

// CryptoError represents an encryption/decryption error.
type CryptoError struct {
	Message string
}

func (e *CryptoError) Error() string {
	return e.Message
}

// ErrCrypto checks if an error is a CryptoError.
func ErrCrypto(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// DeriveKey stretches password into a 32-byte key using PBKDF2-SHA256 with a
// fixed iteration count. When salt is nil a fresh random 32-byte salt is
// generated; the salt actually used is returned alongside the key. The
// derivation is deterministic for a given (password, salt) pair.
func DeriveKey(password string, salt []byte) ([]byte, []byte, error) {
	if password == "" {
		return nil, nil, &CryptoError{Message: "password must be a non-empty string"}
	}

	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	} else if len(salt) != saltSize {
		return nil, nil, &CryptoError{Message: "salt must be 32 bytes"}
	}

	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
	return key, salt, nil
}

// Encrypt seals plaintext under a key derived from password. Every call uses
// a fresh random salt and a fresh random nonce, even for the same password.
// The result is base64(salt[32] + nonce[12] + ciphertext+tag): everything a
// holder of the password needs, and nothing else.
func Encrypt(plaintext, password string) (string, error) {
	if plaintext == "" {
		return "", &CryptoError{Message: "plaintext must be non-empty"}
	}

	key, salt, err := DeriveKey(password, nil)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Wire format: salt[32] + nonce[12] + ciphertext[N+16]
	wire := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	wire = append(wire, salt...)
	wire = append(wire, nonce...)
	wire = append(wire, ciphertext...)

	return base64.StdEncoding.EncodeToString(wire), nil
}

// Decrypt opens an envelope produced by Encrypt. The authentication tag is
// verified before any plaintext is released; wrong password, tampering, and
// truncation all fail with the same error.
func Decrypt(envelope, password string) (string, error) {
	if password == "" {
		return "", &CryptoError{Message: "password must be a non-empty string"}
	}

	wire, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", &CryptoError{Message: decryptFailedMsg}
	}

	if len(wire) < minEnvelopeLen {
		return "", &CryptoError{Message: decryptFailedMsg}
	}

	salt := wire[:saltSize]
	nonce := wire[saltSize : saltSize+nonceSize]
	ciphertext := wire[saltSize+nonceSize:]

	key, _, err := DeriveKey(password, salt)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &CryptoError{Message: decryptFailedMsg}
	}

	return string(plaintext), nil
}

// EncryptMedia encodes raw media bytes to base64 and seals them like any
// other message. Payloads over the raw-byte ceiling are rejected before any
// cryptographic work.
func EncryptMedia(raw []byte, password string) (string, error) {
	if len(raw) == 0 {
		return "", &CryptoError{Message: "media payload must be non-empty"}
	}
	if len(raw) > maxMediaBytes {
		return "", &CryptoError{Message: "media payload exceeds 5 MiB limit"}
	}
	return Encrypt(base64.StdEncoding.EncodeToString(raw), password)
}

// DecryptMedia opens a media envelope and decodes the payload back to raw
// bytes.
func DecryptMedia(envelope, password string) ([]byte, error) {
	encoded, err := Decrypt(envelope, password)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &CryptoError{Message: decryptFailedMsg}
	}
	return raw, nil
}
