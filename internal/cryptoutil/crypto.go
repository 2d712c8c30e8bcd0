// Package cryptoutil provides the cryptographic primitives used across the
// engine: AES-256-GCM sealing, RSA-OAEP session-key wrapping, HMAC-SHA256
// integrity and OS-CSPRNG randomness.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// ============================================================================
// CRYPTOGRAPHIC PRIMITIVES
// ============================================================================

const (
	// AESKeySize is the session-key length used for all GCM sealing.
	AESKeySize = 32
	// GCMIVSize is the nonce length GCM operates with.
	GCMIVSize = 12
	// GCMTagSize is the authentication tag length.
	GCMTagSize = 16
)

// ErrDecryptFailed indicates GCM tag verification failed or the ciphertext
// shape is too short. Callers must surface it, never fall back to plaintext.
var ErrDecryptFailed = errors.New("decryption failed")

// ErrKeyUnavailable indicates PEM key material could not be read.
var ErrKeyUnavailable = errors.New("key unavailable")

// RandomBytes draws n bytes from the OS CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// RandomHex draws n random bytes and hex-encodes them.
func RandomHex(n int) (string, error) {
	buf, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SealAESGCM encrypts plaintext under a 32-byte key with AES-256-GCM.
// A fresh 12-byte IV is drawn on every call; the IV never leaves this
// function except through the return value, so key+IV reuse cannot occur.
// Returns (iv, ciphertext, tag).
func SealAESGCM(key, plaintext []byte) (iv, ciphertext, tag []byte, err error) {
	if len(key) != AESKeySize {
		return nil, nil, nil, fmt.Errorf("aes-gcm seal: key must be %d bytes, got %d", AESKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aes-gcm seal: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aes-gcm seal: %w", err)
	}

	iv, err = RandomBytes(GCMIVSize)
	if err != nil {
		return nil, nil, nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - GCMTagSize
	return iv, sealed[:split], sealed[split:], nil
}

// OpenAESGCM decrypts ciphertext||tag produced by SealAESGCM. Any bit flip
// in the ciphertext, tag or IV yields ErrDecryptFailed.
func OpenAESGCM(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("aes-gcm open: key must be %d bytes, got %d", AESKeySize, len(key))
	}
	if len(iv) != GCMIVSize || len(tag) != GCMTagSize {
		return nil, ErrDecryptFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm open: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm open: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// WrapRSAOAEP encrypts data (typically a session key) under an RSA public
// key using OAEP with SHA-256. publicPEM must hold a PKIX or PKCS#1 public
// key block; anything else yields ErrKeyUnavailable.
func WrapRSAOAEP(publicPEM string, data []byte) ([]byte, error) {
	pub, err := ParseRSAPublicKeyPEM(publicPEM)
	if err != nil {
		return nil, err
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, data, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa-oaep wrap: %w", err)
	}
	return wrapped, nil
}

// ParseRSAPublicKeyPEM parses a PEM-encoded RSA public key, accepting both
// PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") encodings as well as a
// certificate carrying an RSA key.
func ParseRSAPublicKeyPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyUnavailable)
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, fmt.Errorf("%w: not an RSA public key", ErrKeyUnavailable)
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return rsaPub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if rsaPub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported public key encoding", ErrKeyUnavailable)
}

// ParseRSAPrivateKeyPEM parses a PEM-encoded RSA private key, accepting
// PKCS#1 and PKCS#8 encodings.
func ParseRSAPrivateKeyPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyUnavailable)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: not an RSA private key", ErrKeyUnavailable)
	}
	return nil, fmt.Errorf("%w: unsupported private key encoding", ErrKeyUnavailable)
}

// HMACSHA256 computes the HMAC-SHA256 MAC of data under key.
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SecureCompare performs a constant-time comparison of two byte slices.
func SecureCompare(a, b []byte) bool {
	return hmac.Equal(a, b)
}
