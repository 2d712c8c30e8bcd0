// Package gst classifies GST return filings against their statutory due
// dates and aggregates a weighted compliance report.
package gst

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

// GSTINPattern validates the 15-character GST identification number.
var GSTINPattern = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// FilingStatus classifies a single return.
type FilingStatus string

const (
	OnTime  FilingStatus = "ON_TIME"
	Delayed FilingStatus = "DELAYED"
)

// Filing is one GST return as fetched from the GSP.
type Filing struct {
	ReturnType string  `json:"returnType"` // GSTR-1 or GSTR-3B
	Period     string  `json:"period"`     // YYYY-MM filing period
	FilingDate string  `json:"filingDate"` // ISO-8601 instant
	Turnover   float64 `json:"turnover"`
	TaxPaid    float64 `json:"taxPaid"`
}

// ClassifiedFiling is a filing with its due-date verdict attached.
type ClassifiedFiling struct {
	Filing
	Status    FilingStatus `json:"status"`
	DueDate   string       `json:"dueDate"`
	DelayDays int          `json:"delayDays"`
}

// TypeBreakdown aggregates per return type.
type TypeBreakdown struct {
	Total          int     `json:"total"`
	OnTime         int     `json:"onTime"`
	Delayed        int     `json:"delayed"`
	TotalTurnover  float64 `json:"totalTurnover"`
	TotalTaxPaid   float64 `json:"totalTaxPaid"`
	ComplianceRate float64 `json:"complianceRate"`
}

// ComplianceReport is the full GST analysis.
type ComplianceReport struct {
	GSTIN           string                   `json:"gstin"`
	TotalFilings    int                      `json:"totalFilings"`
	OnTime          int                      `json:"onTime"`
	Delayed         int                      `json:"delayed"`
	ComplianceScore float64                  `json:"complianceScore"`
	AvgTurnover     float64                  `json:"avgTurnover"`
	Breakdown       map[string]TypeBreakdown `json:"breakdown"`
	Filings         []ClassifiedFiling       `json:"filings"`
	Degraded        bool                     `json:"degraded,omitempty"`
}

// DueDate computes the statutory due instant for a return type and filing
// period (non-QRMP): GSTR-1 on the 11th, GSTR-3B on the 20th of the month
// after the period, at 23:59:59 local.
func DueDate(returnType, period string) (time.Time, error) {
	periodStart, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, fmt.Errorf("gst: bad period %q: %w", period, err)
	}

	var day int
	switch returnType {
	case "GSTR-1":
		day = 11
	case "GSTR-3B":
		day = 20
	default:
		return time.Time{}, fmt.Errorf("gst: unsupported return type %q", returnType)
	}

	next := periodStart.AddDate(0, 1, 0)
	return time.Date(next.Year(), next.Month(), day, 23, 59, 59, 0, time.UTC), nil
}

// Classify attaches the due-date verdict to one filing. Delay days are
// counted in started 24-hour blocks past the due instant.
func Classify(f Filing) (ClassifiedFiling, error) {
	due, err := DueDate(f.ReturnType, f.Period)
	if err != nil {
		return ClassifiedFiling{}, err
	}

	filed, err := time.Parse(time.RFC3339, f.FilingDate)
	if err != nil {
		return ClassifiedFiling{}, fmt.Errorf("gst: bad filing date %q: %w", f.FilingDate, err)
	}

	out := ClassifiedFiling{Filing: f, DueDate: due.Format(time.RFC3339)}
	if !filed.After(due) {
		out.Status = OnTime
		return out, nil
	}

	out.Status = Delayed
	out.DelayDays = int(math.Ceil(filed.Sub(due).Seconds() / 86400))
	if out.DelayDays < 1 {
		out.DelayDays = 1
	}
	return out, nil
}

// BuildReport classifies every filing and aggregates the compliance score
// (on-time share, 4 dp) with per-return-type breakdowns.
func BuildReport(gstin string, filings []Filing) (*ComplianceReport, error) {
	report := &ComplianceReport{
		GSTIN:     gstin,
		Breakdown: make(map[string]TypeBreakdown),
		Filings:   make([]ClassifiedFiling, 0, len(filings)),
	}

	var turnoverSum float64
	for _, f := range filings {
		classified, err := Classify(f)
		if err != nil {
			return nil, err
		}
		report.Filings = append(report.Filings, classified)
		report.TotalFilings++
		turnoverSum += f.Turnover

		bd := report.Breakdown[f.ReturnType]
		bd.Total++
		bd.TotalTurnover += f.Turnover
		bd.TotalTaxPaid += f.TaxPaid
		if classified.Status == OnTime {
			report.OnTime++
			bd.OnTime++
		} else {
			report.Delayed++
			bd.Delayed++
		}
		report.Breakdown[f.ReturnType] = bd
	}

	if report.TotalFilings > 0 {
		report.ComplianceScore = round4(float64(report.OnTime) / float64(report.TotalFilings))
		report.AvgTurnover = round2(turnoverSum / float64(report.TotalFilings))
	}
	for rt, bd := range report.Breakdown {
		if bd.Total > 0 {
			bd.ComplianceRate = round4(float64(bd.OnTime) / float64(bd.Total))
		}
		report.Breakdown[rt] = bd
	}
	return report, nil
}

func round2(n float64) float64 { return math.Round(n*100) / 100 }
func round4(n float64) float64 { return math.Round(n*10000) / 10000 }
