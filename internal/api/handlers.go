package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/novascore/engine/internal/aa"
	"github.com/novascore/engine/internal/aadhaar"
	"github.com/novascore/engine/internal/behaviour"
	"github.com/novascore/engine/internal/cache"
	"github.com/novascore/engine/internal/consent"
	"github.com/novascore/engine/internal/enginerr"
	"github.com/novascore/engine/internal/fi"
	"github.com/novascore/engine/internal/gst"
	"github.com/novascore/engine/internal/metrics"
	"github.com/novascore/engine/internal/scoring"
	"github.com/novascore/engine/internal/social"
	"github.com/novascore/engine/internal/upi"
	"github.com/novascore/engine/internal/utility"
)

// Handlers bundles the engine services behind the HTTP surface.
type Handlers struct {
	Aadhaar *aadhaar.Service
	Consent *consent.Service
	AA      *aa.Pipeline
	GST     *gst.Fetcher
	BBPS    *utility.Fetcher
	Quiz    *behaviour.Service
	Social  *social.Aggregator
	Scoring *scoring.Engine
	Cache   cache.Store
	Metrics *metrics.Metrics
}

const maxBodyBytes = 4 << 20

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, enginerr.Validation("VALIDATION", "request body is not valid JSON"))
		return false
	}
	return true
}

// observe records the outcome of one operation.
func (h *Handlers) observe(op string, start time.Time, err error) {
	if h.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = enginerr.KindOf(err).String()
	}
	h.Metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	h.Metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (h *Handlers) markDegraded(component string, degraded bool) {
	if h.Metrics != nil && degraded {
		h.Metrics.DegradedTotal.WithLabelValues(component).Inc()
	}
}

// ---- Aadhaar ----

func (h *Handlers) AadhaarInitiate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		Aadhaar   string `json:"aadhaar"`
		DemoPhone string `json:"demo_phone"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Aadhaar.Initiate(r.Context(), req.Aadhaar, req.DemoPhone)
	h.observe("aadhaar.initiate", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.markDegraded("aadhaar", result.Degraded)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AadhaarVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		Aadhaar string `json:"aadhaar"`
		OTP     string `json:"otp"`
		TxnID   string `json:"txn_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Aadhaar.Verify(r.Context(), req.Aadhaar, req.OTP, req.TxnID)
	h.observe("aadhaar.verify", start, err)
	if err != nil {
		if h.Metrics != nil && enginerr.KindOf(err) == enginerr.KindRateLimited {
			h.Metrics.LockoutsTotal.Inc()
		}
		writeError(w, err)
		return
	}
	h.markDegraded("aadhaar", result.Degraded)
	writeJSON(w, http.StatusOK, result)
}

// ---- Consent ----

func (h *Handlers) ConsentCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req consent.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	artefact, err := h.Consent.Create(r.Context(), &req)
	h.observe("consent.create", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, artefact)
}

func (h *Handlers) ConsentGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	artefact, err := h.Consent.Get(r.Context(), mux.Vars(r)["id"])
	h.observe("consent.get", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artefact)
}

func (h *Handlers) ConsentListByUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	artefacts, err := h.Consent.ListByUser(r.Context(), mux.Vars(r)["uref"])
	h.observe("consent.list_by_user", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"consents": artefacts})
}

func (h *Handlers) ConsentRevoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	artefact, err := h.Consent.Revoke(r.Context(), mux.Vars(r)["id"])
	h.observe("consent.revoke", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artefact)
}

// ---- Account Aggregator ----

func (h *Handlers) FIRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req aa.FIRequestInput
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.AA.Request(r.Context(), req)
	h.observe("fi.request", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.markDegraded("aa", result.Degraded)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) FIFetch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		SessionID      string   `json:"session_id"`
		FipID          string   `json:"fip_id"`
		LinkRefNumbers []string `json:"link_ref_numbers"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.AA.Fetch(r.Context(), req.SessionID, req.FipID, req.LinkRefNumbers)
	h.observe("fi.fetch", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.markDegraded("aa", result.Degraded)
	h.cacheTransactions(r, result.SessionID, result.Analysis.Transactions)
	writeJSON(w, http.StatusOK, result)
}

// cacheTransactions keeps the normalised transactions of a fetch so later
// analysis can reference the session instead of re-sending them.
func (h *Handlers) cacheTransactions(r *http.Request, sessionID string, txns []fi.Transaction) {
	if h.Cache == nil || sessionID == "" {
		return
	}
	raw, err := json.Marshal(txns)
	if err != nil {
		return
	}
	h.Cache.Set(r.Context(), "fi:"+sessionID, raw, cache.DefaultTTL)
}

func (h *Handlers) sessionTransactions(r *http.Request, sessionID string) []fi.Transaction {
	if h.Cache == nil || sessionID == "" {
		return nil
	}
	cached, err := h.Cache.Get(r.Context(), "fi:"+sessionID)
	if err != nil {
		return nil
	}
	var txns []fi.Transaction
	if err := json.Unmarshal(cached, &txns); err != nil {
		return nil
	}
	return txns
}

// ---- Analysers ----

func (h *Handlers) UPIAnalyse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		Transactions []fi.Transaction `json:"transactions"`
		SessionID    string           `json:"session_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	txns := req.Transactions
	if len(txns) == 0 && req.SessionID != "" {
		txns = h.sessionTransactions(r, req.SessionID)
		if txns == nil {
			err := enginerr.NotFound("NO_SESSION", "no analysed transactions for session %s", req.SessionID)
			h.observe("upi.analyse", start, err)
			writeError(w, err)
			return
		}
	}
	if len(txns) == 0 {
		err := enginerr.Validation("VALIDATION", "transactions or session_id required")
		h.observe("upi.analyse", start, err)
		writeError(w, err)
		return
	}

	h.observe("upi.analyse", start, nil)
	writeJSON(w, http.StatusOK, upi.Analyze(txns))
}

func (h *Handlers) GSTFetch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		GSTIN       string   `json:"gstin"`
		ReturnTypes []string `json:"return_types"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	report, err := h.GST.Fetch(r.Context(), req.GSTIN, req.ReturnTypes)
	h.observe("gst.fetch", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.markDegraded("gst", report.Degraded)
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) UtilityFetch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		CustomerID string `json:"customer_id"`
		Mobile     string `json:"mobile"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	consumer := req.CustomerID
	if consumer == "" {
		consumer = req.Mobile
	}
	report, err := h.BBPS.Fetch(r.Context(), consumer)
	h.observe("utility.fetch", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.markDegraded("bbps", report.Degraded)
	writeJSON(w, http.StatusOK, report)
}

// ---- Behaviour ----

func (h *Handlers) BehaviourQuestions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	quiz := h.Quiz.Deal()
	h.observe("behaviour.questions", start, nil)
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handlers) BehaviourSubmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		QuizID    string               `json:"quiz_id"`
		Responses []behaviour.Response `json:"responses"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Quiz.Score(req.QuizID, req.Responses)
	h.observe("behaviour.submit", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- Social ----

func (h *Handlers) SocialConnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		ProfileURLs []string `json:"profile_urls"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.Social.Aggregate(r.Context(), req.ProfileURLs)
	h.observe("social.connect", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ---- Scoring ----

// ScoreAggregate runs every analyser whose input is present and folds the
// results into one NovaScore.
func (h *Handlers) ScoreAggregate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		SessionID       string               `json:"session_id"`
		Transactions    []fi.Transaction     `json:"transactions"`
		GSTIN           string               `json:"gstin"`
		CustomerID      string               `json:"customer_id"`
		ProfileURLs     []string             `json:"profile_urls"`
		QuizID          string               `json:"quiz_id"`
		QuizResponses   []behaviour.Response `json:"quiz_responses"`
		NetworkStrength float64              `json:"network_strength"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	in := scoring.Inputs{NetworkStrength: req.NetworkStrength}

	txns := req.Transactions
	if len(txns) == 0 && req.SessionID != "" {
		txns = h.sessionTransactions(r, req.SessionID)
	}
	if len(txns) > 0 {
		in.Cashflow = fi.AnalyzeTransactions(txns)
		in.UPI = upi.Analyze(txns)
	}

	if req.GSTIN != "" {
		report, err := h.GST.Fetch(r.Context(), req.GSTIN, nil)
		if err != nil {
			h.observe("score.aggregate", start, err)
			writeError(w, err)
			return
		}
		h.markDegraded("gst", report.Degraded)
		in.GST = report
	}

	if req.CustomerID != "" {
		report, err := h.BBPS.Fetch(r.Context(), req.CustomerID)
		if err != nil {
			h.observe("score.aggregate", start, err)
			writeError(w, err)
			return
		}
		h.markDegraded("bbps", report.Degraded)
		in.Utility = report
	}

	if req.QuizID != "" && len(req.QuizResponses) > 0 {
		result, err := h.Quiz.Score(req.QuizID, req.QuizResponses)
		if err != nil {
			h.observe("score.aggregate", start, err)
			writeError(w, err)
			return
		}
		in.Behaviour = result
	}

	if len(req.ProfileURLs) > 0 {
		record, err := h.Social.Aggregate(r.Context(), req.ProfileURLs)
		if err != nil {
			h.observe("score.aggregate", start, err)
			writeError(w, err)
			return
		}
		in.Social = record
	}

	result := h.Scoring.Compute(in)
	if h.Metrics != nil {
		h.Metrics.NovaScore.Observe(float64(result.Score))
	}
	h.observe("score.aggregate", start, nil)
	writeJSON(w, http.StatusOK, result)
}
