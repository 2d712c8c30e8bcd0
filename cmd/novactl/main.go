// novactl scores a JSON evidence bundle offline, without the HTTP server or
// any upstream connectivity. Useful for underwriting checkups and for
// replaying bundles captured from production.
//
// Usage:
//
//	novactl -bundle evidence.json
//	cat evidence.json | novactl
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/novascore/engine/internal/behaviour"
	"github.com/novascore/engine/internal/fi"
	"github.com/novascore/engine/internal/gst"
	"github.com/novascore/engine/internal/scoring"
	"github.com/novascore/engine/internal/social"
	"github.com/novascore/engine/internal/upi"
	"github.com/novascore/engine/internal/utility"
)

// bundle is the evidence document novactl consumes. Every section is
// optional; the score confidence reflects whatever coverage is present.
type bundle struct {
	Transactions    []fi.Transaction     `json:"transactions"`
	GSTIN           string               `json:"gstin"`
	GSTFilings      []gst.Filing         `json:"gstFilings"`
	UtilityBills    []utility.Bill       `json:"utilityBills"`
	QuizResponses   []behaviour.Response `json:"quizResponses"`
	SocialURLs      []string             `json:"socialProfileUrls"`
	NetworkStrength float64              `json:"networkStrength"`
}

// report is what novactl prints: the score plus every intermediate
// analysis that fed it.
type report struct {
	Score     *scoring.Result            `json:"score"`
	Cashflow  *fi.Analysis               `json:"cashflow,omitempty"`
	UPI       *upi.Analytics             `json:"upi,omitempty"`
	GST       *gst.ComplianceReport      `json:"gst,omitempty"`
	Utility   *utility.ReliabilityReport `json:"utility,omitempty"`
	Behaviour *behaviour.Result          `json:"behaviour,omitempty"`
	Social    *social.Record             `json:"social,omitempty"`
}

func main() {
	var (
		bundlePath = flag.String("bundle", "", "path to the evidence bundle (default: stdin)")
		compact    = flag.Bool("compact", false, "emit single-line JSON")
	)
	flag.Parse()

	b, err := loadBundle(*bundlePath)
	if err != nil {
		log.Fatalf("novactl: %v", err)
	}

	rep, err := score(context.Background(), b)
	if err != nil {
		log.Fatalf("novactl: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(rep); err != nil {
		log.Fatalf("novactl: encode report: %v", err)
	}
}

func loadBundle(path string) (*bundle, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	var b bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}

// score runs every analyser the bundle has evidence for, then feeds the
// results through the scoring engine.
func score(ctx context.Context, b *bundle) (*report, error) {
	rep := &report{}
	in := scoring.Inputs{NetworkStrength: b.NetworkStrength}

	if len(b.Transactions) > 0 {
		rep.Cashflow = fi.AnalyzeTransactions(b.Transactions)
		rep.UPI = upi.Analyze(b.Transactions)
		in.Cashflow = rep.Cashflow
		in.UPI = rep.UPI
	}

	if b.GSTIN != "" {
		compliance, err := gst.BuildReport(b.GSTIN, b.GSTFilings)
		if err != nil {
			return nil, fmt.Errorf("gst: %w", err)
		}
		rep.GST = compliance
		in.GST = compliance
	}

	if len(b.UtilityBills) > 0 {
		rep.Utility = utility.BuildReport(b.UtilityBills)
		in.Utility = rep.Utility
	}

	if len(b.QuizResponses) > 0 {
		dealt := make([]string, 0, len(b.QuizResponses))
		for _, r := range b.QuizResponses {
			dealt = append(dealt, r.QuestionID)
		}
		result, err := behaviour.ScoreResponses(dealt, b.QuizResponses)
		if err != nil {
			return nil, fmt.Errorf("behaviour: %w", err)
		}
		rep.Behaviour = result
		in.Behaviour = result
	}

	if len(b.SocialURLs) > 0 {
		agg := social.NewAggregator(social.SampleFetcher{})
		record, err := agg.Aggregate(ctx, b.SocialURLs)
		if err != nil {
			return nil, fmt.Errorf("social: %w", err)
		}
		rep.Social = record
		in.Social = record
	}

	rep.Score = scoring.NewEngine().Compute(in)
	return rep, nil
}
