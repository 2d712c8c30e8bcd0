package aa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
	"github.com/novascore/engine/internal/jws"
)

type recordingDoer struct {
	requests  []*http.Request
	payloads  [][]byte
	responses []response
	calls     int
}

type response struct {
	status int
	body   string
	err    error
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		payload, _ := io.ReadAll(req.Body)
		d.payloads = append(d.payloads, payload)
	}

	r := d.responses[d.calls]
	if d.calls < len(d.responses)-1 {
		d.calls++
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
	}, nil
}

func testSigner(t *testing.T) *jws.Signer {
	t.Helper()
	signer, err := jws.NewSigner(jws.Config{KeyID: "client-1", FallbackSecret: "test-secret"})
	require.NoError(t, err)
	return signer
}

func testPipeline(t *testing.T, doer *recordingDoer) *Pipeline {
	t.Helper()
	return NewPipeline(Config{
		BaseURL:      "https://aa.example",
		ClientAPIKey: "key-1",
		FIUEntityID:  "fiu-1",
	}, testSigner(t), doer)
}

func TestRequestValidation(t *testing.T) {
	p := testPipeline(t, &recordingDoer{responses: []response{{err: errors.New("down")}}})

	_, err := p.Request(context.Background(), FIRequestInput{ConsentID: "nope", FIType: "DEPOSIT"})
	assert.Equal(t, "INVALID_UUID", enginerr.CodeOf(err))

	_, err = p.Request(context.Background(), FIRequestInput{ConsentID: uuid.NewString(), FIType: "LOTTERY"})
	assert.Equal(t, enginerr.KindValidation, enginerr.KindOf(err))
}

func TestRequestHappyPath(t *testing.T) {
	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-123"}`},
	}}
	p := testPipeline(t, doer)

	result, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(),
		FIType:    "DEPOSIT",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-123", result.SessionID)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.JWSSignature)

	req := doer.requests[0]
	assert.Equal(t, "https://aa.example/FI/request", req.URL.String())
	assert.Equal(t, result.JWSSignature, req.Header.Get("X-JWS-Signature"))
	assert.Equal(t, "key-1", req.Header.Get("client_api_key"))
	assert.Equal(t, "fiu-1", req.Header.Get("fiu_entity_id"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(doer.payloads[0], &payload))
	assert.Equal(t, "2.0.0", payload["ver"])
	assert.Equal(t, result.TxnID, payload["txnid"])

	km := payload["KeyMaterial"].(map[string]interface{})
	assert.Equal(t, "ECDH", km["cryptoAlg"])
	assert.Equal(t, "Curve25519", km["curve"])
	assert.Len(t, km["Nonce"].(string), 32)
}

func TestRequestAcceptsUppercaseSessionID(t *testing.T) {
	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"SessionId":"sess-upper"}`},
	}}
	p := testPipeline(t, doer)

	result, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-upper", result.SessionID)
}

func TestRequestDegradesWhenUnreachable(t *testing.T) {
	doer := &recordingDoer{responses: []response{{err: errors.New("aa down")}}}
	p := testPipeline(t, doer)

	result, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, "dev-session-"+result.TxnID[:8], result.SessionID)

	session, ok := p.Session(result.TxnID)
	require.True(t, ok)
	assert.True(t, session.Degraded)
}

func TestRequestProductionSurfacesUpstream(t *testing.T) {
	doer := &recordingDoer{responses: []response{{err: errors.New("aa down")}}}
	signer, err := jws.NewSigner(jws.Config{KeyID: "client-1", FallbackSecret: "s"})
	require.NoError(t, err)
	p := NewPipeline(Config{BaseURL: "https://aa.example", Production: true}, signer, doer)

	_, err = p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.Error(t, err)
	assert.Equal(t, enginerr.KindUpstream, enginerr.KindOf(err))
}

func TestFetchRequiresKnownSession(t *testing.T) {
	p := testPipeline(t, &recordingDoer{responses: []response{{err: errors.New("down")}}})

	_, err := p.Fetch(context.Background(), "unknown-session", "", nil)
	assert.Equal(t, "NO_SESSION", enginerr.CodeOf(err))

	_, err = p.Fetch(context.Background(), "", "", nil)
	assert.Equal(t, enginerr.KindValidation, enginerr.KindOf(err))
}

// encryptForSession seals a plaintext under the pipeline's derived session
// key and returns the wire blob.
func encryptForSession(t *testing.T, key, plaintext []byte) string {
	t.Helper()
	iv, ciphertext, tag, err := cryptoutil.SealAESGCM(key, plaintext)
	require.NoError(t, err)

	blob := append(append(append([]byte{}, iv...), ciphertext...), tag...)
	return cryptoutil.Base64Encode(blob)
}

func TestFetchDecryptsWithSidecarKey(t *testing.T) {
	key := bytes.Repeat([]byte{7}, cryptoutil.AESKeySize)
	plaintext := []byte(`{"transactions":[
		{"type":"CREDIT","amount":50000,"narration":"salary","date":"2026-01-31"},
		{"type":"DEBIT","amount":9000,"narration":"rent","date":"2026-02-01"}
	]}`)
	blob := encryptForSession(t, key, plaintext)

	fetchBody, _ := json.Marshal(map[string]string{
		"encryptedFI":   blob,
		"decryptionKey": cryptoutil.Base64Encode(key),
	})

	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-1"}`},
		{status: http.StatusOK, body: string(fetchBody)},
	}}
	p := testPipeline(t, doer)

	_, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)

	result, err := p.Fetch(context.Background(), "sess-1", "FIP-1", []string{"ref-1"})
	require.NoError(t, err)
	assert.Equal(t, 50000.0, result.Analysis.TotalInflow)
	assert.Equal(t, 9000.0, result.Analysis.TotalOutflow)

	// Fetch request shape.
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(doer.payloads[1], &payload))
	assert.Equal(t, "sess-1", payload["session_id"])
	assert.Equal(t, "FIP-1", payload["fip_id"])
	assert.Equal(t, []interface{}{"ref-1"}, payload["link_ref_number"])
}

func TestFetchRejectsTamperedBlob(t *testing.T) {
	key := bytes.Repeat([]byte{7}, cryptoutil.AESKeySize)
	blob := encryptForSession(t, key, []byte(`{"transactions":[]}`))

	// Flip a ciphertext byte.
	raw, err := cryptoutil.Base64Decode(blob)
	require.NoError(t, err)
	raw[cryptoutil.GCMIVSize] ^= 0x01
	tampered := cryptoutil.Base64Encode(raw)

	fetchBody, _ := json.Marshal(map[string]string{
		"encryptedFI":   tampered,
		"decryptionKey": cryptoutil.Base64Encode(key),
	})

	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-1"}`},
		{status: http.StatusOK, body: string(fetchBody)},
	}}
	p := testPipeline(t, doer)

	_, err = p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), "sess-1", "", nil)
	require.Error(t, err)
	assert.Equal(t, enginerr.KindDecrypt, enginerr.KindOf(err))
}

func TestFetchAcceptsPlaintextFI(t *testing.T) {
	fetchBody := `{"FI":{"transactions":[{"type":"CREDIT","amount":1000,"narration":"refund"}]}}`

	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-1"}`},
		{status: http.StatusOK, body: fetchBody},
	}}
	p := testPipeline(t, doer)

	_, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)

	result, err := p.Fetch(context.Background(), "sess-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, result.Analysis.TotalInflow)
}

func TestFetchDegradedSample(t *testing.T) {
	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-1"}`},
		{err: errors.New("aa down")},
	}}
	p := testPipeline(t, doer)

	_, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)

	result, err := p.Fetch(context.Background(), "sess-1", "", nil)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Greater(t, result.Analysis.TotalInflow, 0.0)
	assert.Greater(t, result.Analysis.TotalOutflow, 0.0)
}

func TestDecryptFIBlobShapes(t *testing.T) {
	key := bytes.Repeat([]byte{9}, cryptoutil.AESKeySize)

	_, err := DecryptFIBlob("!!!not-base64!!!", key)
	assert.Equal(t, enginerr.KindDecrypt, enginerr.KindOf(err))
	assert.Equal(t, "DECRYPT_FAILED: encrypted FI blob is not valid base64", err.Error())

	short := cryptoutil.Base64Encode(bytes.Repeat([]byte{1}, 10))
	_, err = DecryptFIBlob(short, key)
	assert.Equal(t, enginerr.KindDecrypt, enginerr.KindOf(err))
	assert.Equal(t, "DECRYPT_FAILED: encrypted FI blob too short", err.Error())
}

func TestDeriveSessionKeyDeterministic(t *testing.T) {
	a := deriveSessionKey("aabbccddeeff00112233445566778899", "txn-1")
	b := deriveSessionKey("aabbccddeeff00112233445566778899", "txn-1")
	c := deriveSessionKey("aabbccddeeff00112233445566778899", "txn-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, cryptoutil.AESKeySize)
}

func TestSampleFIResponseDeterministic(t *testing.T) {
	a := SampleFIResponse("sess-1")
	b := SampleFIResponse("sess-1")
	assert.Equal(t, a, b)
	assert.True(t, strings.Contains(string(a), "transactions"))
}

func TestSessionTimestampsRecorded(t *testing.T) {
	doer := &recordingDoer{responses: []response{
		{status: http.StatusOK, body: `{"sessionId":"sess-1"}`},
	}}
	p := testPipeline(t, doer)
	fixed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	result, err := p.Request(context.Background(), FIRequestInput{
		ConsentID: uuid.NewString(), FIType: "DEPOSIT",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T10:00:00Z", result.Timestamp)

	session, ok := p.Session(result.TxnID)
	require.True(t, ok)
	assert.Equal(t, fixed, session.CreatedAt)
}
