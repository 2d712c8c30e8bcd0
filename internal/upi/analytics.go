// Package upi computes analytics over UPI transactions: volume, monthly
// frequency, merchant-category inference and an entropy-based diversity
// score.
package upi

import (
	"math"
	"sort"
	"strings"

	"github.com/novascore/engine/internal/fi"
)

// mccPattern maps a narration substring to a merchant category code.
// First match wins.
var mccPatterns = []struct {
	keyword  string
	mcc      string
	category string
}{
	{"salary", "6012", "Financial Institutions"},
	{"rent", "6513", "Real Estate"},
	{"utility", "4900", "Utilities"},
	{"electricity", "4900", "Utilities"},
	{"grocer", "5411", "Grocery Stores"},
	{"fuel", "5541", "Fuel"},
	{"petrol", "5541", "Fuel"},
	{"telecom", "4812", "Telecom"},
	{"recharge", "4812", "Telecom"},
	{"insurance", "6300", "Insurance"},
	{"healthcare", "8062", "Healthcare"},
	{"hospital", "8062", "Healthcare"},
	{"shopping", "5311", "Department Stores"},
	{"food", "5812", "Restaurants"},
	{"restaurant", "5812", "Restaurants"},
	{"transport", "4121", "Transport"},
	{"professional", "7392", "Professional Services"},
	{"loan", "6010", "Lending"},
	{"emi", "6010", "Lending"},
	{"investment", "6211", "Securities"},
}

// mccNames resolves a category label for codes arriving on the record
// itself.
var mccNames = map[string]string{
	"6012": "Financial Institutions",
	"6513": "Real Estate",
	"4900": "Utilities",
	"5411": "Grocery Stores",
	"5541": "Fuel",
	"4812": "Telecom",
	"6300": "Insurance",
	"8062": "Healthcare",
	"5311": "Department Stores",
	"5812": "Restaurants",
	"4121": "Transport",
	"7392": "Professional Services",
	"6010": "Lending",
	"6211": "Securities",
	"0000": "Unclassified",
}

// MCCStat is the per-merchant-category rollup.
type MCCStat struct {
	MCC      string  `json:"mcc"`
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Volume   float64 `json:"volume"`
}

// Merchant is a narration-level volume rollup.
type Merchant struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Volume float64 `json:"volume"`
}

// Analytics is the UPI summary for a transaction set.
type Analytics struct {
	TransactionCount       int            `json:"transactionCount"`
	TotalVolume            float64        `json:"totalVolume"`
	AvgTransactionAmt      float64        `json:"avgTransactionAmt"`
	MonthlyFrequency       map[string]int `json:"monthlyFrequency"`
	MCCBreakdown           []MCCStat      `json:"mccBreakdown"`
	MerchantDiversityScore float64        `json:"merchantDiversityScore"`
	TopMerchants           []Merchant     `json:"topMerchants"`
}

// InferMCC returns the merchant category code for a narration, 0000 when
// nothing matches.
func InferMCC(narration string) string {
	lower := strings.ToLower(narration)
	for _, p := range mccPatterns {
		if strings.Contains(lower, p.keyword) {
			return p.mcc
		}
	}
	return "0000"
}

// Analyze filters the UPI transactions out of a normalised set and computes
// the full analytics block.
func Analyze(txns []fi.Transaction) *Analytics {
	a := &Analytics{
		MonthlyFrequency: make(map[string]int),
		MCCBreakdown:     []MCCStat{},
		TopMerchants:     []Merchant{},
	}

	mccCounts := make(map[string]*MCCStat)
	merchants := make(map[string]*Merchant)
	var volume float64

	for _, t := range txns {
		if !strings.EqualFold(t.Mode, "UPI") {
			continue
		}
		a.TransactionCount++
		volume += t.Amount

		if len(t.Date) >= 7 {
			a.MonthlyFrequency[t.Date[:7]]++
		}

		mcc := t.MCC
		if mcc == "" {
			mcc = InferMCC(t.Narration)
		}
		stat, ok := mccCounts[mcc]
		if !ok {
			category := mccNames[mcc]
			if category == "" {
				category = "Unclassified"
			}
			stat = &MCCStat{MCC: mcc, Category: category}
			mccCounts[mcc] = stat
		}
		stat.Count++
		stat.Volume = round2(stat.Volume + t.Amount)

		m, ok := merchants[t.Narration]
		if !ok {
			m = &Merchant{Name: t.Narration}
			merchants[t.Narration] = m
		}
		m.Count++
		m.Volume = round2(m.Volume + t.Amount)
	}

	a.TotalVolume = round2(volume)
	if a.TransactionCount > 0 {
		a.AvgTransactionAmt = round2(volume / float64(a.TransactionCount))
	}

	for _, stat := range mccCounts {
		a.MCCBreakdown = append(a.MCCBreakdown, *stat)
	}
	sort.Slice(a.MCCBreakdown, func(i, j int) bool {
		if a.MCCBreakdown[i].Volume != a.MCCBreakdown[j].Volume {
			return a.MCCBreakdown[i].Volume > a.MCCBreakdown[j].Volume
		}
		return a.MCCBreakdown[i].MCC < a.MCCBreakdown[j].MCC
	})

	a.MerchantDiversityScore = diversityScore(mccCounts, a.TransactionCount)

	for _, m := range merchants {
		a.TopMerchants = append(a.TopMerchants, *m)
	}
	sort.Slice(a.TopMerchants, func(i, j int) bool {
		if a.TopMerchants[i].Volume != a.TopMerchants[j].Volume {
			return a.TopMerchants[i].Volume > a.TopMerchants[j].Volume
		}
		return a.TopMerchants[i].Name < a.TopMerchants[j].Name
	})
	if len(a.TopMerchants) > 10 {
		a.TopMerchants = a.TopMerchants[:10]
	}

	return a
}

// diversityScore is the normalised Shannon entropy over merchant
// categories: 1.0 for a perfectly even spread, 0.0 for a single category.
func diversityScore(mccCounts map[string]*MCCStat, total int) float64 {
	n := len(mccCounts)
	if n <= 1 || total == 0 {
		return 0
	}

	var entropy float64
	for _, stat := range mccCounts {
		p := float64(stat.Count) / float64(total)
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return round3(entropy / math.Log(float64(n)))
}

func round2(n float64) float64 { return math.Round(n*100) / 100 }
func round3(n float64) float64 { return math.Round(n*1000) / 1000 }
