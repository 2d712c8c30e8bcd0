// Package utility scores bill-payment reliability: severity-weighted
// classification per bill, consistency, a recent-trend signal and
// per-category rollups.
package utility

import (
	"math"
	"sort"
	"time"
)

// PaymentStatus classifies how a bill was settled.
type PaymentStatus string

const (
	OnTime     PaymentStatus = "ON_TIME"
	MinorDelay PaymentStatus = "MINOR_DELAY"
	MajorDelay PaymentStatus = "MAJOR_DELAY"
	Unpaid     PaymentStatus = "UNPAID"
)

// Trend describes the direction of recent payment behaviour.
type Trend string

const (
	Improving Trend = "IMPROVING"
	Declining Trend = "DECLINING"
	Stable    Trend = "STABLE"
)

// statusPoints are the earned points per classification out of a 10-point
// bill weight.
var statusPoints = map[PaymentStatus]float64{
	OnTime:     10,
	MinorDelay: 6,
	MajorDelay: 2,
	Unpaid:     0,
}

const billWeight = 10.0

// Bill is one utility bill record.
type Bill struct {
	BillID   string  `json:"billId"`
	Category string  `json:"category"` // electricity, water, gas, broadband, ...
	Amount   float64 `json:"amount"`
	DueDate  string  `json:"dueDate"`
	PaidDate string  `json:"paidDate,omitempty"`
	Status   string  `json:"status,omitempty"` // optional explicit UNPAID marker
}

// ClassifiedBill carries the verdict for one bill.
type ClassifiedBill struct {
	Bill
	Classification PaymentStatus `json:"classification"`
	DelayDays      int           `json:"delayDays"`
	Points         float64       `json:"points"`
}

// CategoryRollup aggregates per bill category.
type CategoryRollup struct {
	Total         int     `json:"total"`
	OnTime        int     `json:"onTime"`
	MinorDelay    int     `json:"minorDelay"`
	MajorDelay    int     `json:"majorDelay"`
	Unpaid        int     `json:"unpaid"`
	TotalAmount   float64 `json:"totalAmount"`
	WeightedScore float64 `json:"weightedScore"`
}

// ReliabilityReport is the full utility analysis.
type ReliabilityReport struct {
	TotalBills       int                       `json:"totalBills"`
	OnTime           int                       `json:"onTime"`
	MinorDelays      int                       `json:"minorDelays"`
	MajorDelays      int                       `json:"majorDelays"`
	Unpaid           int                       `json:"unpaid"`
	ReliabilityScore float64                   `json:"reliabilityScore"`
	ConsistencyScore int                       `json:"consistencyScore"`
	Trend            Trend                     `json:"trend"`
	Categories       map[string]CategoryRollup `json:"categories"`
	Bills            []ClassifiedBill          `json:"bills"`
	Degraded         bool                      `json:"degraded,omitempty"`
}

// Classify assigns the severity class for one bill:
// no payment or explicit UNPAID → UNPAID; unparseable dates → MAJOR_DELAY;
// paid on or before due → ON_TIME; within 5 days → MINOR_DELAY; else
// MAJOR_DELAY.
func Classify(b Bill) ClassifiedBill {
	out := ClassifiedBill{Bill: b}

	if b.PaidDate == "" || b.Status == "UNPAID" {
		out.Classification = Unpaid
		out.Points = statusPoints[Unpaid]
		return out
	}

	due, errDue := parseDate(b.DueDate)
	paid, errPaid := parseDate(b.PaidDate)
	if errDue != nil || errPaid != nil {
		out.Classification = MajorDelay
		out.Points = statusPoints[MajorDelay]
		return out
	}

	if !paid.After(due) {
		out.Classification = OnTime
		out.Points = statusPoints[OnTime]
		return out
	}

	delay := int(math.Ceil(paid.Sub(due).Hours() / 24))
	out.DelayDays = delay
	if delay <= 5 {
		out.Classification = MinorDelay
		out.Points = statusPoints[MinorDelay]
	} else {
		out.Classification = MajorDelay
		out.Points = statusPoints[MajorDelay]
	}
	return out
}

// BuildReport scores a bill history. Bills are evaluated in chronological
// due-date order so the trend window reflects the most recent behaviour.
func BuildReport(bills []Bill) *ReliabilityReport {
	report := &ReliabilityReport{
		Trend:      Stable,
		Categories: make(map[string]CategoryRollup),
		Bills:      make([]ClassifiedBill, 0, len(bills)),
	}

	ordered := append([]Bill(nil), bills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, ei := parseDate(ordered[i].DueDate)
		dj, ej := parseDate(ordered[j].DueDate)
		if ei != nil || ej != nil {
			return false
		}
		return di.Before(dj)
	})

	var earned float64
	for _, b := range ordered {
		c := Classify(b)
		report.Bills = append(report.Bills, c)
		report.TotalBills++
		earned += c.Points

		switch c.Classification {
		case OnTime:
			report.OnTime++
		case MinorDelay:
			report.MinorDelays++
		case MajorDelay:
			report.MajorDelays++
		case Unpaid:
			report.Unpaid++
		}

		rollup := report.Categories[b.Category]
		rollup.Total++
		rollup.TotalAmount = round2(rollup.TotalAmount + b.Amount)
		switch c.Classification {
		case OnTime:
			rollup.OnTime++
		case MinorDelay:
			rollup.MinorDelay++
		case MajorDelay:
			rollup.MajorDelay++
		case Unpaid:
			rollup.Unpaid++
		}
		report.Categories[b.Category] = rollup
	}

	if report.TotalBills == 0 {
		return report
	}

	total := float64(report.TotalBills) * billWeight
	report.ReliabilityScore = round2(earned / total * 100)
	report.ConsistencyScore = int(float64(report.OnTime) / float64(report.TotalBills) * 100)
	report.Trend = computeTrend(report.Bills)

	for cat, rollup := range report.Categories {
		var catEarned float64
		for _, c := range report.Bills {
			if c.Category == cat {
				catEarned += c.Points
			}
		}
		rollup.WeightedScore = round2(catEarned / (float64(rollup.Total) * billWeight) * 100)
		report.Categories[cat] = rollup
	}
	return report
}

// computeTrend compares the mean earned points of the last three bills to
// the overall mean. Fewer than four bills is always STABLE.
func computeTrend(bills []ClassifiedBill) Trend {
	if len(bills) < 4 {
		return Stable
	}

	var overall float64
	for _, b := range bills {
		overall += b.Points
	}
	overall /= float64(len(bills))

	var recent float64
	for _, b := range bills[len(bills)-3:] {
		recent += b.Points
	}
	recent /= 3

	switch {
	case recent-overall > 1:
		return Improving
	case recent-overall < -1:
		return Declining
	default:
		return Stable
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func round2(n float64) float64 { return math.Round(n*100) / 100 }
