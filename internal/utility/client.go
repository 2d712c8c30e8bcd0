package utility

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

// Config carries the BBPS integration parameters.
type Config struct {
	BaseURL         string
	APIKey          string
	Production      bool
	UpstreamTimeout time.Duration
}

var sampleCategories = []string{"electricity", "water", "gas", "broadband"}

// Fetcher pulls bill-payment history from BBPS and scores it. When BBPS is
// unreachable outside production it synthesises a deterministic sample
// history, flagged degraded.
type Fetcher struct {
	cfg    Config
	client capability.HTTPDoer
	logger *log.Logger
	now    func() time.Time
}

// NewFetcher wires the BBPS fetcher.
func NewFetcher(cfg Config, client capability.HTTPDoer) *Fetcher {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		logger: log.New(log.Writer(), "[BBPS] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Fetch pulls the bill history for a consumer and returns the reliability
// report.
func (f *Fetcher) Fetch(ctx context.Context, consumerID string) (*ReliabilityReport, error) {
	if consumerID == "" {
		return nil, enginerr.Validation("VALIDATION", "consumer id is required")
	}

	bills, degraded, err := f.fetchBills(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	report := BuildReport(bills)
	report.Degraded = degraded
	return report, nil
}

func (f *Fetcher) fetchBills(ctx context.Context, consumerID string) ([]Bill, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.UpstreamTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/consumers/%s/bills", f.cfg.BaseURL, consumerID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, enginerr.Internal("bbps request build failed").Wrap(err)
	}
	req.Header.Set("x-api-key", f.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		if f.cfg.Production {
			return nil, false, enginerr.Upstream("UPSTREAM", "bbps unreachable for consumer").Wrap(err)
		}
		f.logger.Printf("⚠️ bbps unreachable, serving sample history for consumer %s", consumerID)
		return SampleBills(consumerID, f.now()), true, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, enginerr.Upstream("UPSTREAM", "bbps response read failed").Wrap(err)
	}

	var payload struct {
		Bills []Bill `json:"bills"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, enginerr.Upstream("UPSTREAM", "bbps response malformed").Wrap(err)
	}
	return payload.Bills, false, nil
}

// SampleBills synthesises twelve months of bill history across the common
// categories, deterministic per consumer so repeated degraded fetches agree.
func SampleBills(consumerID string, now time.Time) []Bill {
	digest := cryptoutil.SHA256Hex([]byte(consumerID))
	seed := int64(binary.BigEndian.Uint64([]byte(digest[:8])))
	rng := rand.New(rand.NewSource(seed))

	var bills []Bill
	for monthsBack := 12; monthsBack >= 1; monthsBack-- {
		month := now.AddDate(0, -monthsBack, 0)
		due := time.Date(month.Year(), month.Month(), 10, 0, 0, 0, 0, time.UTC)

		for i, cat := range sampleCategories {
			bill := Bill{
				BillID:   fmt.Sprintf("%s-%s-%s", consumerID, cat, month.Format("200601")),
				Category: cat,
				Amount:   round2(300 + rng.Float64()*2200),
				DueDate:  due.AddDate(0, 0, i).Format("2006-01-02"),
			}

			// Mostly on time, a few small slips, the odd missed bill.
			switch roll := rng.Float64(); {
			case roll < 0.70:
				bill.PaidDate = due.AddDate(0, 0, i-rng.Intn(5)).Format("2006-01-02")
			case roll < 0.90:
				bill.PaidDate = due.AddDate(0, 0, i+rng.Intn(5)+1).Format("2006-01-02")
			case roll < 0.97:
				bill.PaidDate = due.AddDate(0, 0, i+rng.Intn(20)+6).Format("2006-01-02")
			default:
				bill.Status = "UNPAID"
			}
			bills = append(bills, bill)
		}
	}
	return bills
}
