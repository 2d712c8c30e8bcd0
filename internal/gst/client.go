package gst

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/novascore/engine/internal/capability"
	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
)

// Config carries the GSP integration parameters.
type Config struct {
	BaseURL         string
	APIKey          string
	Production      bool
	UpstreamTimeout time.Duration
}

// Fetcher pulls return history from the GSP and builds compliance reports.
// When the GSP is unreachable outside production it synthesises a
// deterministic sample history, flagged degraded.
type Fetcher struct {
	cfg    Config
	client capability.HTTPDoer
	logger *log.Logger
	now    func() time.Time
}

// NewFetcher wires the GST fetcher.
func NewFetcher(cfg Config, client capability.HTTPDoer) *Fetcher {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		logger: log.New(log.Writer(), "[GST] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Fetch validates the GSTIN, pulls its filings and returns the compliance
// report. returnTypes filters the history; empty means both GSTR-1 and
// GSTR-3B.
func (f *Fetcher) Fetch(ctx context.Context, gstin string, returnTypes []string) (*ComplianceReport, error) {
	if !GSTINPattern.MatchString(gstin) {
		return nil, enginerr.Validation("INVALID_GSTIN", "%q is not a valid GSTIN", gstin)
	}
	if len(returnTypes) == 0 {
		returnTypes = []string{"GSTR-1", "GSTR-3B"}
	}
	for _, rt := range returnTypes {
		if rt != "GSTR-1" && rt != "GSTR-3B" {
			return nil, enginerr.Validation("VALIDATION", "unsupported return type %q", rt)
		}
	}

	filings, degraded, err := f.fetchFilings(ctx, gstin, returnTypes)
	if err != nil {
		return nil, err
	}

	report, err := BuildReport(gstin, filings)
	if err != nil {
		return nil, enginerr.Upstream("UPSTREAM", "gsp returned malformed filings").Wrap(err)
	}
	report.Degraded = degraded
	return report, nil
}

func (f *Fetcher) fetchFilings(ctx context.Context, gstin string, returnTypes []string) ([]Filing, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.UpstreamTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/taxpayers/%s/returns", f.cfg.BaseURL, gstin)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, enginerr.Internal("gsp request build failed").Wrap(err)
	}
	req.Header.Set("x-api-key", f.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		if f.cfg.Production {
			return nil, false, enginerr.Upstream("UPSTREAM", "gsp unreachable for %s", gstin).Wrap(err)
		}
		f.logger.Printf("⚠️ gsp unreachable, serving sample history for %s", gstin)
		return SampleFilings(gstin, returnTypes, f.now()), true, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, enginerr.Upstream("UPSTREAM", "gsp response read failed").Wrap(err)
	}

	var payload struct {
		Filings []Filing `json:"filings"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, enginerr.Upstream("UPSTREAM", "gsp response malformed").Wrap(err)
	}

	filtered := payload.Filings[:0]
	allowed := map[string]bool{}
	for _, rt := range returnTypes {
		allowed[rt] = true
	}
	for _, filing := range payload.Filings {
		if allowed[filing.ReturnType] {
			filtered = append(filtered, filing)
		}
	}
	return filtered, false, nil
}

// SampleFilings synthesises twelve months of return history, deterministic
// per GSTIN so repeated degraded fetches agree.
func SampleFilings(gstin string, returnTypes []string, now time.Time) []Filing {
	digest := cryptoutil.SHA256Hex([]byte(gstin))
	seed := int64(binary.BigEndian.Uint64([]byte(digest[:8])))
	rng := rand.New(rand.NewSource(seed))

	var filings []Filing
	for monthsBack := 12; monthsBack >= 1; monthsBack-- {
		period := now.AddDate(0, -monthsBack, 0)
		periodKey := period.Format("2006-01")

		for _, rt := range returnTypes {
			due, err := DueDate(rt, periodKey)
			if err != nil {
				continue
			}

			// Roughly three quarters of sampled filings land on time.
			filed := due.Add(-time.Duration(rng.Intn(72)+1) * time.Hour)
			if rng.Float64() > 0.75 {
				filed = due.Add(time.Duration(rng.Intn(10)+1) * 24 * time.Hour)
			}

			turnover := 400000 + rng.Float64()*600000
			filings = append(filings, Filing{
				ReturnType: rt,
				Period:     periodKey,
				FilingDate: filed.Format(time.RFC3339),
				Turnover:   round2(turnover),
				TaxPaid:    round2(turnover * 0.18),
			})
		}
	}
	return filings
}
