// Package aadhaar implements the OTP authentication flow against UIDAI:
// PID-block sealing, Auth-envelope construction, per-identity rate limiting
// and JWT issuance on successful verification.
package aadhaar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/novascore/engine/internal/capability"
	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
	"github.com/novascore/engine/internal/identity"
)

// ============================================================================
// OTP AUTHENTICATION STATE MACHINE
// ============================================================================

// State is the per-identity position in the OTP flow.
type State int

const (
	StateIdle State = iota
	StateAwaitingOTP
	StateVerified
	StateLocked
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingOTP:
		return "AWAITING_OTP"
	case StateVerified:
		return "VERIFIED"
	case StateLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

var (
	aadhaarPattern = regexp.MustCompile(`^\d{12}$`)
	otpPattern     = regexp.MustCompile(`^\d{6}$`)
)

// Config carries the UIDAI integration parameters. Key material arrives as
// opaque PEM blobs; management is outside the engine.
type Config struct {
	AUACode    string
	SubAUA     string
	LicenseKey string
	// AuthBaseURL is the UIDAI auth prefix; the AUA code and the first two
	// digits of the identifier are appended per the wire contract.
	AuthBaseURL       string
	UIDAIPublicKeyPEM string

	// TestOTP is accepted by the degraded path when UIDAI is unreachable.
	TestOTP    string
	JWTSecret  string
	TokenTTL   time.Duration
	Production bool

	// UpstreamTimeout bounds each UIDAI call.
	UpstreamTimeout time.Duration
}

// skeySentinel replaces the RSA-wrapped session key when the UIDAI public
// key cannot be read. Dev-only; the production flag refuses it.
const skeySentinel = "DEV-MODE-SENTINEL-SESSION-KEY"

// Service runs the initiate/verify flow.
type Service struct {
	cfg    Config
	store  *identity.Store
	client capability.HTTPDoer
	sms    capability.SmsSender
	logger *log.Logger
	now    func() time.Time
}

// NewService wires the OTP service.
func NewService(cfg Config, store *identity.Store, client capability.HTTPDoer, sms capability.SmsSender) *Service {
	if cfg.TestOTP == "" {
		cfg.TestOTP = "123456"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		client: client,
		sms:    sms,
		logger: log.New(log.Writer(), "[AADHAAR] ", log.LstdFlags),
		now:    time.Now,
	}
}

// InitiateResult reports a created OTP session.
type InitiateResult struct {
	TxnID    string `json:"txn_id"`
	State    string `json:"state"`
	Degraded bool   `json:"degraded,omitempty"`
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	Token    string `json:"jwt"`
	State    string `json:"state"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Initiate validates the identifier, builds and dispatches the OTP-request
// envelope, and records the session. IDLE → AWAITING_OTP.
func (s *Service) Initiate(ctx context.Context, aadhaar, demoPhone string) (*InitiateResult, error) {
	if !aadhaarPattern.MatchString(aadhaar) {
		return nil, enginerr.Validation("INVALID_ID", "identifier must be exactly 12 digits")
	}

	hashed := identity.Hash(aadhaar)
	if s.store.IsLocked(hashed) {
		remaining := s.store.RemainingLockout(hashed)
		return nil, enginerr.RateLimited("LOCKED", remaining,
			"identity locked, retry in %d seconds", remaining)
	}

	txnID := uuid.NewString()
	envelope, keyDegraded, err := s.buildEnvelope(aadhaar, "", txnID)
	if err != nil {
		return nil, err
	}

	degraded := keyDegraded
	if _, err := s.dispatch(ctx, aadhaar, envelope); err != nil {
		if s.cfg.Production {
			return nil, enginerr.Upstream("UPSTREAM_UNREACHABLE", "uidai dispatch failed").Wrap(err)
		}
		// Degraded mode: deliver the configured test OTP and keep the flow
		// alive so the rest of the pipeline stays testable.
		degraded = true
		s.logger.Printf("⚠️ uidai unreachable, degraded OTP delivery: %v", err)
		if demoPhone != "" && s.sms != nil {
			if smsErr := s.sms.Send(ctx, demoPhone, "NovaScore verification code: "+s.cfg.TestOTP); smsErr != nil {
				s.logger.Printf("⚠️ degraded sms delivery failed: %v", smsErr)
			}
		}
	}

	s.store.PutSession(hashed, txnID)
	s.logger.Printf("otp session created txn=%s degraded=%v", txnID, degraded)

	return &InitiateResult{TxnID: txnID, State: StateAwaitingOTP.String(), Degraded: degraded}, nil
}

// Verify checks the entered OTP against UIDAI (or the degraded test OTP),
// issuing a JWT and consuming the session on success.
// AWAITING_OTP → VERIFIED, or → LOCKED after too many failures.
func (s *Service) Verify(ctx context.Context, aadhaar, otp, txnID string) (*VerifyResult, error) {
	if !aadhaarPattern.MatchString(aadhaar) {
		return nil, enginerr.Validation("INVALID_ID", "identifier must be exactly 12 digits")
	}
	if !otpPattern.MatchString(otp) {
		return nil, enginerr.Validation("INVALID_OTP", "otp must be exactly 6 digits")
	}
	if txnID == "" {
		return nil, enginerr.Validation("TXN_MISMATCH", "txn_id is required")
	}

	hashed := identity.Hash(aadhaar)
	if s.store.IsLocked(hashed) {
		remaining := s.store.RemainingLockout(hashed)
		return nil, enginerr.RateLimited("LOCKED", remaining,
			"identity locked, retry in %d seconds", remaining)
	}

	sess, ok := s.store.GetSession(hashed)
	if !ok {
		return nil, enginerr.NotFound("NO_SESSION", "no pending otp session; initiate first")
	}
	if sess.TxnID != txnID {
		return nil, enginerr.Conflict("TXN_MISMATCH", "txn_id does not match the pending session")
	}

	envelope, keyDegraded, err := s.buildEnvelope(aadhaar, otp, txnID)
	if err != nil {
		return nil, err
	}

	verified := false
	degraded := keyDegraded
	body, dispatchErr := s.dispatch(ctx, aadhaar, envelope)
	switch {
	case dispatchErr == nil:
		verified = strings.Contains(body, `ret="y"`) || strings.Contains(body, `ret='y'`)
	case s.cfg.Production:
		return nil, enginerr.Upstream("UPSTREAM_UNREACHABLE", "uidai dispatch failed").Wrap(dispatchErr)
	default:
		degraded = true
		verified = otp == s.cfg.TestOTP
	}

	if !verified {
		locked, attemptsLeft := s.store.IncrementFailed(hashed)
		if locked {
			remaining := s.store.RemainingLockout(hashed)
			return nil, enginerr.RateLimited("LOCKED", remaining,
				"too many failed attempts, locked for %d seconds", remaining)
		}
		return nil, enginerr.Validation("INVALID_OTP", "otp verification failed, %d attempts left", attemptsLeft)
	}

	token, err := IssueToken([]byte(s.cfg.JWTSecret), hashed, txnID, s.cfg.TokenTTL, s.now())
	if err != nil {
		return nil, enginerr.Internal("token issuance failed").Wrap(err)
	}

	s.store.ClearSession(hashed)
	s.store.Reset(hashed)
	s.logger.Printf("✅ otp verified txn=%s degraded=%v", txnID, degraded)

	return &VerifyResult{Token: token, State: StateVerified.String(), Degraded: degraded}, nil
}

// buildEnvelope seals a fresh PID block and wraps its session key. Returns
// the Auth XML, whether the sentinel key placeholder was substituted, and
// any hard error.
func (s *Service) buildEnvelope(uid, otp, txnID string) (xml string, keyDegraded bool, err error) {
	now := s.now()
	pid := BuildPIDXML(now, otp)

	sessionKey, err := cryptoutil.RandomBytes(cryptoutil.AESKeySize)
	if err != nil {
		return "", false, enginerr.Internal("session key generation failed").Wrap(err)
	}

	iv, ciphertext, tag, err := cryptoutil.SealAESGCM(sessionKey, []byte(pid))
	if err != nil {
		return "", false, enginerr.Internal("pid sealing failed").Wrap(err)
	}

	sealed := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	sealed = append(sealed, iv...)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	mac := cryptoutil.HMACSHA256(sessionKey, []byte(pid))

	parts := EnvelopeParts{
		HmacB64: cryptoutil.Base64Encode(mac),
		DataB64: cryptoutil.Base64Encode(sealed),
		KeyCI:   now.Format("20060102"),
	}

	wrapped, wrapErr := cryptoutil.WrapRSAOAEP(s.cfg.UIDAIPublicKeyPEM, sessionKey)
	if wrapErr != nil {
		if s.cfg.Production {
			return "", false, enginerr.KeyUnavailable("uidai public key unreadable").Wrap(wrapErr)
		}
		keyDegraded = true
		parts.SkeyB64 = cryptoutil.Base64Encode([]byte(skeySentinel))
	} else {
		parts.SkeyB64 = cryptoutil.Base64Encode(wrapped)
	}

	return BuildAuthXML(uid, s.cfg.AUACode, s.cfg.SubAUA, s.cfg.LicenseKey, txnID, parts), keyDegraded, nil
}

// dispatch POSTs the Auth envelope to UIDAI and returns the response body.
func (s *Service) dispatch(ctx context.Context, uid, envelope string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	endpoint := AuthEndpoint(s.cfg.AuthBaseURL, s.cfg.AUACode, uid)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewBufferString(envelope))
	if err != nil {
		return "", fmt.Errorf("uidai request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uidai dispatch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("uidai response read: %w", err)
	}
	return string(body), nil
}
