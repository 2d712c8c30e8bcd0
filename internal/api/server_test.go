package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novascore/engine/internal/aadhaar"
	"github.com/novascore/engine/internal/behaviour"
	"github.com/novascore/engine/internal/cache"
	"github.com/novascore/engine/internal/consent"
	"github.com/novascore/engine/internal/gst"
	"github.com/novascore/engine/internal/identity"
	"github.com/novascore/engine/internal/metrics"
	"github.com/novascore/engine/internal/scoring"
	"github.com/novascore/engine/internal/social"
	"github.com/novascore/engine/internal/utility"
)

// unreachableDoer fails every call, forcing the fetchers onto their
// degraded sample paths.
type unreachableDoer struct{}

func (unreachableDoer) Do(r *http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	handlers := &Handlers{
		Consent: consent.NewService(nil),
		GST:     gst.NewFetcher(gst.Config{}, unreachableDoer{}),
		BBPS:    utility.NewFetcher(utility.Config{}, unreachableDoer{}),
		Quiz:    behaviour.NewService(7),
		Social:  social.NewAggregator(social.SampleFetcher{}),
		Scoring: scoring.NewEngine(),
		Cache:   cache.NewMemoryStore(),
	}
	return NewServer("8080", handlers).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doJSON(t, newTestServer(t), "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMalformedBodyReturns400(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/score", bytes.NewBufferString("{not json"))
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION")
}

func TestConsentLifecycle(t *testing.T) {
	h := newTestServer(t)

	create := doJSON(t, h, "POST", "/api/v1/consents", consent.CreateRequest{
		UserReferenceID: "user-42",
		FITypes:         []string{"DEPOSIT", "UPI"},
		DataRange: consent.DataRange{
			From: "2025-08-01T00:00:00Z",
			To:   "2026-08-01T00:00:00Z",
		},
		DataLife: consent.DataLife{Unit: "MONTH", Value: 6},
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var artefact consent.Artefact
	require.NoError(t, json.NewDecoder(create.Body).Decode(&artefact))
	require.NotEmpty(t, artefact.ConsentID)
	assert.Equal(t, consent.StatusActive, artefact.Status)

	get := doJSON(t, h, "GET", "/api/v1/consents/"+artefact.ConsentID, nil)
	assert.Equal(t, http.StatusOK, get.Code)

	revoke := doJSON(t, h, "POST", fmt.Sprintf("/api/v1/consents/%s/revoke", artefact.ConsentID), nil)
	require.Equal(t, http.StatusOK, revoke.Code)
	var revoked consent.Artefact
	require.NoError(t, json.NewDecoder(revoke.Body).Decode(&revoked))
	assert.Equal(t, consent.StatusRevoked, revoked.Status)

	again := doJSON(t, h, "POST", fmt.Sprintf("/api/v1/consents/%s/revoke", artefact.ConsentID), nil)
	assert.Equal(t, http.StatusConflict, again.Code)

	list := doJSON(t, h, "GET", "/api/v1/consents?user=user-42", nil)
	assert.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), artefact.ConsentID)
}

func TestConsentGetUnknownReturns404(t *testing.T) {
	rec := doJSON(t, newTestServer(t), "GET", "/api/v1/consents/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBehaviourQuizFlow(t *testing.T) {
	h := newTestServer(t)

	deal := doJSON(t, h, "GET", "/api/v1/behaviour/questions", nil)
	require.Equal(t, http.StatusOK, deal.Code)

	var quiz behaviour.ServedQuiz
	require.NoError(t, json.NewDecoder(deal.Body).Decode(&quiz))
	require.Len(t, quiz.Questions, behaviour.QuizSize)

	responses := make([]behaviour.Response, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		responses = append(responses, behaviour.Response{QuestionID: q.ID, Choice: "Always"})
	}

	submit := doJSON(t, h, "POST", "/api/v1/behaviour/submit", map[string]interface{}{
		"quiz_id":   quiz.QuizID,
		"responses": responses,
	})
	require.Equal(t, http.StatusOK, submit.Code)

	var result behaviour.Result
	require.NoError(t, json.NewDecoder(submit.Body).Decode(&result))
	assert.Equal(t, 25, result.TotalScore)
	assert.Equal(t, "Prudent Strategist", result.Persona)

	// The quiz is consumed on scoring.
	resubmit := doJSON(t, h, "POST", "/api/v1/behaviour/submit", map[string]interface{}{
		"quiz_id":   quiz.QuizID,
		"responses": responses,
	})
	assert.Equal(t, http.StatusNotFound, resubmit.Code)
}

func TestUPIAnalyseUnknownSession(t *testing.T) {
	rec := doJSON(t, newTestServer(t), "POST", "/api/v1/upi/analyse", map[string]interface{}{
		"session_id": "missing-session",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_SESSION")
}

func TestScoreWithNoEvidence(t *testing.T) {
	rec := doJSON(t, newTestServer(t), "POST", "/api/v1/score", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	var result scoring.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 750, result.Score)
	assert.Equal(t, "Prime", result.Tier)
	assert.InDelta(t, 0.0, result.Confidence, 1e-9)
	assert.NotEmpty(t, result.AuditHash)
}

func TestScoreWithDegradedEvidence(t *testing.T) {
	rec := doJSON(t, newTestServer(t), "POST", "/api/v1/score", map[string]interface{}{
		"gstin":       "29ABCDE1234F1Z5",
		"customer_id": "CUST-1001",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result scoring.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Degraded)
	assert.GreaterOrEqual(t, result.Score, 300)
	assert.LessOrEqual(t, result.Score, 900)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
}

func TestAadhaarLockoutIncrementsMetric(t *testing.T) {
	store := identity.NewStore(identity.WithMaxAttempts(1))
	svc := aadhaar.NewService(aadhaar.Config{
		TestOTP:   "123456",
		JWTSecret: "test-jwt-secret",
	}, store, unreachableDoer{}, nil)
	m := metrics.NewWith(prometheus.NewRegistry())
	h := &Handlers{Aadhaar: svc, Metrics: m}

	initiate := httptest.NewRecorder()
	h.AadhaarInitiate(initiate, httptest.NewRequest("POST", "/api/v1/aadhaar/initiate",
		bytes.NewBufferString(`{"aadhaar":"123456789012"}`)))
	require.Equal(t, http.StatusOK, initiate.Code)

	var init aadhaar.InitiateResult
	require.NoError(t, json.NewDecoder(initiate.Body).Decode(&init))

	// A single wrong OTP trips the one-attempt lockout.
	verify := httptest.NewRecorder()
	h.AadhaarVerify(verify, httptest.NewRequest("POST", "/api/v1/aadhaar/verify",
		bytes.NewBufferString(`{"aadhaar":"123456789012","otp":"000000","txn_id":"`+init.TxnID+`"}`)))

	assert.Equal(t, http.StatusTooManyRequests, verify.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockoutsTotal))
}
