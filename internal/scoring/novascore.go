// Package scoring combines the per-source analyser outputs into a single
// NovaScore in the 300-900 range with per-feature attribution, a coverage
// confidence and a tamper-evident audit hash.
package scoring

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/novascore/engine/internal/behaviour"
	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/fi"
	"github.com/novascore/engine/internal/gst"
	"github.com/novascore/engine/internal/social"
	"github.com/novascore/engine/internal/upi"
	"github.com/novascore/engine/internal/utility"
)

// Score bounds and adjustment constants.
const (
	BaseScore = 750
	MinScore  = 300
	MaxScore  = 900

	strongCashflowBonus = 40
	weakCashflowBonus   = 10
	networkBonus        = 30
	variancePenalty     = -50

	cashflowRatioThreshold = 1.2
	networkThreshold       = 0.8
	varianceThreshold      = 0.15
)

// Confidence weights per evidence source, after the target construction of
// the underlying ensemble.
const (
	weightGST      = 0.4
	weightCashflow = 0.3
	weightUPI      = 0.2
	weightDSCR     = 0.1
)

// RBI-style band labels, carried in explanation text.
const (
	bandPrime    = "PRIME"
	bandGood     = "GOOD"
	bandFair     = "FAIR"
	bandSubprime = "SUBPRIME"
)

// Inputs gathers whatever evidence is available. Nil sections mean the
// source was not connected; confidence reflects coverage.
type Inputs struct {
	Cashflow  *fi.Analysis               `json:"cashflow,omitempty"`
	UPI       *upi.Analytics             `json:"upi,omitempty"`
	GST       *gst.ComplianceReport      `json:"gst,omitempty"`
	Utility   *utility.ReliabilityReport `json:"utility,omitempty"`
	Behaviour *behaviour.Result          `json:"behaviour,omitempty"`
	Social    *social.Record             `json:"social,omitempty"`

	// NetworkStrength is the validation-derived strength of the applicant's
	// verified network, in [0, 1].
	NetworkStrength float64 `json:"networkStrength"`
}

// Explanation is one SHAP-style attribution entry.
type Explanation struct {
	Feature   string `json:"feature"`
	Impact    int    `json:"impact"`
	Reasoning string `json:"reasoning"`
}

// Result is the final credit profile.
type Result struct {
	Score        int           `json:"score"`
	Tier         string        `json:"tier"`
	Confidence   float64       `json:"confidence"`
	Explanations []Explanation `json:"explanations"`
	AuditHash    string        `json:"audit_hash"`
	TimestampMs  int64         `json:"timestamp_ms"`
	Degraded     bool          `json:"degraded,omitempty"`
}

// Engine computes NovaScores.
type Engine struct {
	logger *log.Logger
	now    func() time.Time
}

// NewEngine builds the scoring engine.
func NewEngine() *Engine {
	return &Engine{
		logger: log.New(log.Writer(), "[SCORE] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Compute applies the published adjustment rules to the evidence and seals
// the result with an audit hash.
func (e *Engine) Compute(in Inputs) *Result {
	score := BaseScore
	var explanations []Explanation

	if in.Cashflow != nil {
		ratio := cashflowRatio(in.Cashflow)
		if ratio >= cashflowRatioThreshold {
			score += strongCashflowBonus
			explanations = append(explanations, Explanation{
				Feature: "cashflow_ratio",
				Impact:  strongCashflowBonus,
				Reasoning: fmt.Sprintf("inflow covers outflow %.2fx, at or above the %.1fx threshold",
					ratio, cashflowRatioThreshold),
			})
		} else {
			score += weakCashflowBonus
			explanations = append(explanations, Explanation{
				Feature: "cashflow_ratio",
				Impact:  weakCashflowBonus,
				Reasoning: fmt.Sprintf("inflow covers outflow %.2fx, below the %.1fx threshold",
					ratio, cashflowRatioThreshold),
			})
		}
	}

	if in.NetworkStrength > networkThreshold {
		score += networkBonus
		explanations = append(explanations, Explanation{
			Feature:   "network_strength",
			Impact:    networkBonus,
			Reasoning: fmt.Sprintf("verified network strength %.2f exceeds %.1f", in.NetworkStrength, networkThreshold),
		})
	}

	if in.GST != nil && in.Cashflow != nil {
		variance := turnoverVariance(in.GST, in.Cashflow)
		if variance > varianceThreshold {
			score += variancePenalty
			explanations = append(explanations, Explanation{
				Feature: "turnover_variance",
				Impact:  variancePenalty,
				Reasoning: fmt.Sprintf("declared GST turnover differs from banked inflow by %.0f%%, above the %.0f%% tolerance",
					variance*100, varianceThreshold*100),
			})
		}
	}

	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}

	explanations = append(explanations, Explanation{
		Feature:   "score_band",
		Impact:    0,
		Reasoning: fmt.Sprintf("score %d falls in the %s band", score, Band(score)),
	})

	now := e.now()
	result := &Result{
		Score:        score,
		Tier:         Tier(score),
		Confidence:   Confidence(in),
		Explanations: explanations,
		TimestampMs:  now.UnixMilli(),
		Degraded:     anyDegraded(in),
	}
	result.AuditHash = auditHash(score, inputsDigest(in), result.TimestampMs)

	e.logger.Printf("✅ scored %d (%s) confidence %.2f", result.Score, result.Tier, result.Confidence)
	return result
}

// Tier maps a score to the three-tier wire field.
func Tier(score int) string {
	switch {
	case score >= 750:
		return "Prime"
	case score >= 650:
		return "Good"
	default:
		return "Sub-Prime"
	}
}

// Band maps a score to the four-band regulatory scale.
func Band(score int) string {
	switch {
	case score >= 750:
		return bandPrime
	case score >= 650:
		return bandGood
	case score >= 550:
		return bandFair
	default:
		return bandSubprime
	}
}

// Confidence is the weighted coverage of available evidence, in [0, 1].
// Utility reliability stands in for the debt-service coverage signal.
func Confidence(in Inputs) float64 {
	var c float64
	if in.GST != nil {
		c += weightGST
	}
	if in.Cashflow != nil {
		c += weightCashflow
	}
	if in.UPI != nil {
		c += weightUPI
	}
	if in.Utility != nil {
		c += weightDSCR
	}
	if c > 1 {
		c = 1
	}
	return round2(c)
}

func cashflowRatio(a *fi.Analysis) float64 {
	if a.TotalOutflow <= 0 {
		if a.TotalInflow > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return a.TotalInflow / a.TotalOutflow
}

// turnoverVariance compares declared average GST turnover against banked
// inflow, relative to the declared figure.
func turnoverVariance(g *gst.ComplianceReport, a *fi.Analysis) float64 {
	if g.AvgTurnover <= 0 {
		return 0
	}
	return math.Abs(g.AvgTurnover-a.TotalInflow) / g.AvgTurnover
}

func anyDegraded(in Inputs) bool {
	if in.GST != nil && in.GST.Degraded {
		return true
	}
	if in.Utility != nil && in.Utility.Degraded {
		return true
	}
	return false
}

// inputsDigest fingerprints the evidence that produced a score.
func inputsDigest(in Inputs) string {
	raw, err := json.Marshal(in)
	if err != nil {
		return cryptoutil.SHA256Hex(nil)
	}
	return cryptoutil.SHA256Hex(raw)
}

// auditHash seals {score, inputs_digest, timestamp_ms} under a canonical
// key-sorted JSON rendering.
func auditHash(score int, digest string, timestampMs int64) string {
	canonical := fmt.Sprintf(`{"inputs_digest":%q,"score":%d,"timestamp_ms":%d}`, digest, score, timestampMs)
	return cryptoutil.SHA256Hex([]byte(canonical))
}

func round2(n float64) float64 { return math.Round(n*100) / 100 }
