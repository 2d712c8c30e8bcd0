package aa

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/novascore/engine/internal/capability"
	"github.com/novascore/engine/internal/consent"
	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
	"github.com/novascore/engine/internal/fi"
	"github.com/novascore/engine/internal/jws"
)

// Config carries the AA integration parameters.
type Config struct {
	BaseURL        string
	ClientAPIKey   string
	FIUEntityID    string
	Production     bool
	RequestTimeout time.Duration
}

// Session tracks one FI transfer from request to fetch.
type Session struct {
	TxnID     string    `json:"txn_id"`
	SessionID string    `json:"session_id"`
	ConsentID string    `json:"consent_id"`
	FIType    string    `json:"fi_type"`
	CreatedAt time.Time `json:"created_at"`
	Degraded  bool      `json:"degraded"`

	key []byte
}

// RequestResult is the outcome of an FI request.
type RequestResult struct {
	TxnID        string          `json:"txn_id"`
	SessionID    string          `json:"session_id"`
	Timestamp    string          `json:"timestamp"`
	JWSSignature string          `json:"jws_signature"`
	AAResponse   json.RawMessage `json:"aa_response,omitempty"`
	Degraded     bool            `json:"degraded,omitempty"`
}

// FetchResult is the outcome of an FI fetch: the decrypted, analysed data.
type FetchResult struct {
	TxnID     string       `json:"txn_id"`
	SessionID string       `json:"session_id"`
	Analysis  *fi.Analysis `json:"analysis"`
	Degraded  bool         `json:"degraded,omitempty"`
}

// Pipeline drives FI request and fetch against an Account Aggregator.
type Pipeline struct {
	cfg    Config
	signer *jws.Signer
	client capability.HTTPDoer
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	byTxn     map[string]*Session
	bySession map[string]string // session id -> txn id
}

// NewPipeline wires the AA pipeline.
func NewPipeline(cfg Config, signer *jws.Signer, client capability.HTTPDoer) *Pipeline {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Pipeline{
		cfg:       cfg,
		signer:    signer,
		client:    client,
		logger:    log.New(log.Writer(), "[AA] ", log.LstdFlags),
		now:       time.Now,
		byTxn:     make(map[string]*Session),
		bySession: make(map[string]string),
	}
}

// Request validates the input, builds and signs the FI request, dispatches
// it and records the transfer session.
func (p *Pipeline) Request(ctx context.Context, in FIRequestInput) (*RequestResult, error) {
	if _, err := uuid.Parse(in.ConsentID); err != nil {
		return nil, enginerr.Validation("INVALID_UUID", "consent id %q is not a valid UUID", in.ConsentID)
	}
	if !consent.AllowedFITypes[in.FIType] {
		return nil, enginerr.Validation("VALIDATION", "unsupported fi type %q", in.FIType)
	}

	now := p.now()
	txnID := uuid.NewString()
	nonce, err := cryptoutil.RandomHex(16)
	if err != nil {
		return nil, enginerr.Internal("nonce generation failed").Wrap(err)
	}

	payload := buildRequestPayload(in, txnID, nonce, now)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, enginerr.Internal("fi request encode failed").Wrap(err)
	}

	signature, err := p.signer.Sign(body)
	if err != nil {
		return nil, enginerr.Internal("fi request signing failed").Wrap(err)
	}

	session := &Session{
		TxnID:     txnID,
		ConsentID: in.ConsentID,
		FIType:    in.FIType,
		CreatedAt: now,
		key:       deriveSessionKey(nonce, txnID),
	}

	result := &RequestResult{
		TxnID:        txnID,
		Timestamp:    payload.Timestamp,
		JWSSignature: signature,
	}

	aaBody, err := p.post(ctx, "/FI/request", body, signature)
	if err == nil {
		if sid := extractSessionID(aaBody); sid != "" {
			session.SessionID = sid
			result.AAResponse = aaBody
		} else {
			err = fmt.Errorf("aa response carried no session id")
		}
	}
	if err != nil {
		if p.cfg.Production {
			return nil, enginerr.Upstream("UPSTREAM", "aa unreachable for FI request").Wrap(err)
		}
		session.SessionID = "dev-session-" + txnID[:8]
		session.Degraded = true
		result.Degraded = true
		p.logger.Printf("⚠️ aa unreachable, degraded session %s", session.SessionID)
	}
	result.SessionID = session.SessionID

	p.mu.Lock()
	p.byTxn[txnID] = session
	p.bySession[session.SessionID] = txnID
	p.mu.Unlock()
	return result, nil
}

// Fetch retrieves and decrypts the FI payload for a session and hands the
// plaintext to the transaction analyser.
func (p *Pipeline) Fetch(ctx context.Context, sessionID, fipID string, linkRefs []string) (*FetchResult, error) {
	if sessionID == "" {
		return nil, enginerr.Validation("VALIDATION", "session id is required")
	}

	p.mu.Lock()
	txnID, ok := p.bySession[sessionID]
	var session *Session
	if ok {
		session = p.byTxn[txnID]
	}
	p.mu.Unlock()
	if session == nil {
		return nil, enginerr.NotFound("NO_SESSION", "no FI session for %s", sessionID)
	}

	if linkRefs == nil {
		linkRefs = []string{}
	}
	payload := fiFetchPayload{
		Ver:           "2.0.0",
		Timestamp:     cryptoutil.TimestampUTC(p.now()),
		TxnID:         session.TxnID,
		SessionID:     sessionID,
		FipID:         fipID,
		LinkRefNumber: linkRefs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, enginerr.Internal("fi fetch encode failed").Wrap(err)
	}
	signature, err := p.signer.Sign(body)
	if err != nil {
		return nil, enginerr.Internal("fi fetch signing failed").Wrap(err)
	}

	degraded := session.Degraded
	aaBody, err := p.post(ctx, "/FI/fetch", body, signature)
	if err != nil {
		if p.cfg.Production {
			return nil, enginerr.Upstream("UPSTREAM", "aa unreachable for FI fetch").Wrap(err)
		}
		p.logger.Printf("⚠️ aa unreachable, serving sample FI data for session %s", sessionID)
		aaBody = SampleFIResponse(sessionID)
		degraded = true
	}

	plaintext, err := p.extractPlaintext(aaBody, session)
	if err != nil {
		return nil, err
	}

	analysis, err := fi.Analyze(plaintext)
	if err != nil {
		return nil, enginerr.Upstream("UPSTREAM", "FI payload unparseable").Wrap(err)
	}

	return &FetchResult{
		TxnID:     session.TxnID,
		SessionID: sessionID,
		Analysis:  analysis,
		Degraded:  degraded,
	}, nil
}

// Session returns a copy of the tracked session for a txn id.
func (p *Pipeline) Session(txnID string) (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byTxn[txnID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (p *Pipeline) post(ctx context.Context, path string, body []byte, signature string) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-JWS-Signature", signature)
	req.Header.Set("client_api_key", p.cfg.ClientAPIKey)
	req.Header.Set("fiu_entity_id", p.cfg.FIUEntityID)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("aa returned status %d", resp.StatusCode)
	}
	return raw, nil
}

// extractPlaintext pulls the FI data out of a fetch response: an encrypted
// blob when present, a plaintext FI field otherwise.
func (p *Pipeline) extractPlaintext(aaBody json.RawMessage, session *Session) ([]byte, error) {
	var envelope struct {
		EncryptedFI   string          `json:"encryptedFI"`
		DecryptionKey string          `json:"decryptionKey,omitempty"`
		FI            json.RawMessage `json:"FI,omitempty"`
	}
	if err := json.Unmarshal(aaBody, &envelope); err != nil {
		return nil, enginerr.Upstream("UPSTREAM", "aa fetch response malformed").Wrap(err)
	}

	if envelope.EncryptedFI == "" {
		if len(envelope.FI) == 0 {
			return nil, enginerr.Upstream("UPSTREAM", "aa fetch response carried no FI data")
		}
		return envelope.FI, nil
	}

	key := session.key
	// Degraded transfers ship the key alongside the blob for testability.
	if envelope.DecryptionKey != "" && !p.cfg.Production {
		decoded, err := cryptoutil.Base64Decode(envelope.DecryptionKey)
		if err != nil || len(decoded) != cryptoutil.AESKeySize {
			return nil, enginerr.Decrypt("sidecar key malformed")
		}
		key = decoded
	}

	return DecryptFIBlob(envelope.EncryptedFI, key)
}

// DecryptFIBlob opens a base64 IV||ciphertext||tag blob with the session key.
func DecryptFIBlob(encoded string, key []byte) ([]byte, error) {
	blob, err := cryptoutil.Base64Decode(strings.TrimSpace(encoded))
	if err != nil {
		return nil, enginerr.Decrypt("encrypted FI blob is not valid base64")
	}
	if len(blob) < cryptoutil.GCMIVSize+cryptoutil.GCMTagSize {
		return nil, enginerr.Decrypt("encrypted FI blob too short")
	}

	iv := blob[:cryptoutil.GCMIVSize]
	tag := blob[len(blob)-cryptoutil.GCMTagSize:]
	ciphertext := blob[cryptoutil.GCMIVSize : len(blob)-cryptoutil.GCMTagSize]

	plaintext, err := cryptoutil.OpenAESGCM(key, iv, ciphertext, tag)
	if err != nil {
		return nil, enginerr.Decrypt("FI payload authentication failed").Wrap(err)
	}
	return plaintext, nil
}

// deriveSessionKey expands the request nonce into the 32-byte transfer key.
func deriveSessionKey(nonce, txnID string) []byte {
	r := hkdf.New(sha256.New, []byte(nonce), []byte(txnID), []byte("fi-session-key"))
	key := make([]byte, cryptoutil.AESKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// SHA-256 HKDF cannot fail at this output length.
		panic(err)
	}
	return key
}

// SampleFIResponse synthesises a plaintext FI response, deterministic per
// session, for degraded fetches.
func SampleFIResponse(sessionID string) json.RawMessage {
	seed := cryptoutil.SHA256Hex([]byte(sessionID))

	sample := map[string]interface{}{
		"FI": map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"txn_id": "S-" + seed[:8], "type": "CREDIT", "amount": 52000, "narration": "salary credit", "mode": "NEFT", "date": "2026-01-31"},
				{"txn_id": "S-" + seed[8:16], "type": "DEBIT", "amount": 12000, "narration": "rent payment", "mode": "UPI", "date": "2026-02-01"},
				{"txn_id": "S-" + seed[16:24], "type": "DEBIT", "amount": 2400, "narration": "electricity bill", "mode": "UPI", "date": "2026-02-03"},
				{"txn_id": "S-" + seed[24:32], "type": "DEBIT", "amount": 5200, "narration": "emi auto debit", "mode": "ACH", "date": "2026-02-05"},
			},
		},
	}
	raw, _ := json.Marshal(sample)
	return raw
}

func extractSessionID(body []byte) string {
	var resp struct {
		SessionIDLower string `json:"sessionId"`
		SessionIDUpper string `json:"SessionId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.SessionIDLower != "" {
		return resp.SessionIDLower
	}
	return resp.SessionIDUpper
}
