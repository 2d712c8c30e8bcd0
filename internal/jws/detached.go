// Package jws implements the detached JWS signing scheme the Account
// Aggregator ecosystem requires: RS256 compact serialisation with the
// payload segment removed and a non-b64 critical header.
package jws

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/novascore/engine/internal/cryptoutil"
)

// header is the protected JWS header. With "b64": false the payload is
// signed as-is; the transit representation still carries one encoding pass.
type header struct {
	Alg  string   `json:"alg"`
	Kid  string   `json:"kid"`
	B64  bool     `json:"b64"`
	Crit []string `json:"crit"`
}

// Signer produces detached signatures ("header..signature") over request
// payloads. When no private key PEM is configured it falls back to
// HMAC-SHA256 under a shared secret — a development aid that the
// production flag disables outright.
type Signer struct {
	key            *rsa.PrivateKey
	kid            string
	fallbackSecret []byte
	production     bool
	logger         *log.Logger

	warnedFallback bool
}

// Config configures a Signer.
type Config struct {
	PrivateKeyPEM  string
	KeyID          string // carried as "kid"; typically the FIU client id
	FallbackSecret string
	Production     bool
}

// NewSigner parses the key material and returns a signer. A missing or
// unreadable PEM is tolerated outside production.
func NewSigner(cfg Config) (*Signer, error) {
	s := &Signer{
		kid:            cfg.KeyID,
		fallbackSecret: []byte(cfg.FallbackSecret),
		production:     cfg.Production,
		logger:         log.New(log.Writer(), "[JWS] ", log.LstdFlags),
	}

	if cfg.PrivateKeyPEM != "" {
		key, err := cryptoutil.ParseRSAPrivateKeyPEM(cfg.PrivateKeyPEM)
		if err != nil {
			if cfg.Production {
				return nil, fmt.Errorf("jws signer: %w", err)
			}
			s.logger.Printf("⚠️ signing key unreadable, HMAC fallback armed: %v", err)
		} else {
			s.key = key
		}
	} else if cfg.Production {
		return nil, fmt.Errorf("jws signer: private key required in production")
	}

	return s, nil
}

// SigningInput builds the byte string that gets signed:
// b64url(header) || "." || b64url(payload).
func (s *Signer) SigningInput(payload []byte) (string, error) {
	h := header{Alg: "RS256", Kid: s.kid, B64: false, Crit: []string{"b64"}}
	headerJSON, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("jws header marshal: %w", err)
	}
	return cryptoutil.Base64URLEncode(headerJSON) + "." + cryptoutil.Base64URLEncode(payload), nil
}

// Sign returns the detached compact serialisation "header..signature" for
// the canonical JSON payload bytes.
func (s *Signer) Sign(payload []byte) (string, error) {
	input, err := s.SigningInput(payload)
	if err != nil {
		return "", err
	}

	var sig []byte
	switch {
	case s.key != nil:
		digest := sha256.Sum256([]byte(input))
		sig, err = rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
		if err != nil {
			return "", fmt.Errorf("jws sign: %w", err)
		}
	case !s.production && len(s.fallbackSecret) > 0:
		if !s.warnedFallback {
			s.logger.Printf("⚠️ signing with HMAC fallback secret — dev mode only")
			s.warnedFallback = true
		}
		sig = cryptoutil.HMACSHA256(s.fallbackSecret, []byte(input))
	default:
		return "", fmt.Errorf("jws sign: no signing key available")
	}

	dot := strings.Index(input, ".")
	return input[:dot] + ".." + cryptoutil.Base64URLEncode(sig), nil
}

// Verify checks a detached signature against the payload using an RSA
// public key PEM. It mirrors Sign for the RS256 path.
func Verify(detached string, payload []byte, publicPEM string) (bool, error) {
	parts := strings.Split(detached, ".")
	if len(parts) != 3 || parts[1] != "" {
		return false, fmt.Errorf("jws verify: not a detached serialisation")
	}

	headerJSON, err := cryptoutil.Base64URLDecode(parts[0])
	if err != nil {
		return false, fmt.Errorf("jws verify: bad header encoding: %w", err)
	}
	var h header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return false, fmt.Errorf("jws verify: bad header: %w", err)
	}
	if h.Alg != "RS256" {
		return false, fmt.Errorf("jws verify: unsupported alg %q", h.Alg)
	}

	pub, err := cryptoutil.ParseRSAPublicKeyPEM(publicPEM)
	if err != nil {
		return false, err
	}

	sig, err := cryptoutil.Base64URLDecode(parts[2])
	if err != nil {
		return false, fmt.Errorf("jws verify: bad signature encoding: %w", err)
	}

	input := parts[0] + "." + cryptoutil.Base64URLEncode(payload)
	digest := sha256.Sum256([]byte(input))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}
