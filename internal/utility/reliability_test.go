package utility

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySingleBills(t *testing.T) {
	cases := []struct {
		name string
		bill Bill
		want PaymentStatus
	}{
		{"paid before due", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-08"}, OnTime},
		{"paid on due date", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-10"}, OnTime},
		{"three days late", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-13"}, MinorDelay},
		{"five days late", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-15"}, MinorDelay},
		{"six days late", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-16"}, MajorDelay},
		{"never paid", Bill{DueDate: "2026-01-10"}, Unpaid},
		{"explicit unpaid", Bill{DueDate: "2026-01-10", PaidDate: "2026-01-08", Status: "UNPAID"}, Unpaid},
		{"garbage due date", Bill{DueDate: "soon", PaidDate: "2026-01-08"}, MajorDelay},
		{"garbage paid date", Bill{DueDate: "2026-01-10", PaidDate: "whenever"}, MajorDelay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.bill).Classification)
		})
	}
}

func TestClassifyDelayDays(t *testing.T) {
	c := Classify(Bill{DueDate: "2026-01-10", PaidDate: "2026-01-13"})
	assert.Equal(t, 3, c.DelayDays)

	c = Classify(Bill{DueDate: "2026-01-10T00:00:00Z", PaidDate: "2026-01-10T06:00:00Z"})
	assert.Equal(t, MinorDelay, c.Classification)
	assert.Equal(t, 1, c.DelayDays, "partial days count as one")
}

func TestReliabilityWeighting(t *testing.T) {
	// One bill of each class. The minor-delay bill is the oldest so the
	// recent window stays near the overall mean.
	bills := []Bill{
		{BillID: "b2", Category: "water", Amount: 600, DueDate: "2026-02-10", PaidDate: "2026-02-13"},
		{BillID: "b1", Category: "electricity", Amount: 1800, DueDate: "2026-03-10", PaidDate: "2026-03-09"},
		{BillID: "b3", Category: "gas", Amount: 900, DueDate: "2026-04-10", PaidDate: "2026-04-25"},
		{BillID: "b4", Category: "broadband", Amount: 1100, DueDate: "2026-05-10"},
	}

	report := BuildReport(bills)
	assert.Equal(t, 45.0, report.ReliabilityScore, "(10+6+2+0)/40 * 100")
	assert.Equal(t, 1, report.OnTime)
	assert.Equal(t, 1, report.MinorDelays)
	assert.Equal(t, 1, report.MajorDelays)
	assert.Equal(t, 1, report.Unpaid)
	assert.Equal(t, 25, report.ConsistencyScore)
	assert.Equal(t, Stable, report.Trend)
}

func TestReliabilityExtremes(t *testing.T) {
	var allOnTime, allUnpaid []Bill
	for m := 1; m <= 6; m++ {
		due := monthDue(m)
		allOnTime = append(allOnTime, Bill{Category: "electricity", DueDate: due, PaidDate: due})
		allUnpaid = append(allUnpaid, Bill{Category: "electricity", DueDate: due})
	}

	assert.Equal(t, 100.0, BuildReport(allOnTime).ReliabilityScore)
	assert.Equal(t, 0.0, BuildReport(allUnpaid).ReliabilityScore)
}

func TestTrendDetection(t *testing.T) {
	// Six unpaid then three on-time: recent mean 10 vs overall ~3.3.
	var improving []Bill
	for m := 1; m <= 6; m++ {
		improving = append(improving, Bill{Category: "gas", DueDate: monthDue(m)})
	}
	for m := 7; m <= 9; m++ {
		improving = append(improving, Bill{Category: "gas", DueDate: monthDue(m), PaidDate: monthDue(m)})
	}
	assert.Equal(t, Improving, BuildReport(improving).Trend)

	// Six on-time then three unpaid.
	var declining []Bill
	for m := 1; m <= 6; m++ {
		declining = append(declining, Bill{Category: "gas", DueDate: monthDue(m), PaidDate: monthDue(m)})
	}
	for m := 7; m <= 9; m++ {
		declining = append(declining, Bill{Category: "gas", DueDate: monthDue(m)})
	}
	assert.Equal(t, Declining, BuildReport(declining).Trend)

	// Fewer than four bills never produces a trend signal.
	short := []Bill{
		{Category: "gas", DueDate: monthDue(1)},
		{Category: "gas", DueDate: monthDue(2)},
		{Category: "gas", DueDate: monthDue(3)},
	}
	assert.Equal(t, Stable, BuildReport(short).Trend)
}

func TestTrendUsesChronologicalOrder(t *testing.T) {
	// Input arrives newest-first; the report must still see the three
	// on-time bills as the recent window.
	bills := []Bill{
		{Category: "water", DueDate: monthDue(9), PaidDate: monthDue(9)},
		{Category: "water", DueDate: monthDue(8), PaidDate: monthDue(8)},
		{Category: "water", DueDate: monthDue(7), PaidDate: monthDue(7)},
		{Category: "water", DueDate: monthDue(1)},
		{Category: "water", DueDate: monthDue(2)},
		{Category: "water", DueDate: monthDue(3)},
		{Category: "water", DueDate: monthDue(4)},
	}
	assert.Equal(t, Improving, BuildReport(bills).Trend)
}

func TestCategoryRollup(t *testing.T) {
	bills := []Bill{
		{Category: "electricity", Amount: 1500, DueDate: "2026-01-10", PaidDate: "2026-01-09"},
		{Category: "electricity", Amount: 1600, DueDate: "2026-02-10", PaidDate: "2026-02-12"},
		{Category: "water", Amount: 500, DueDate: "2026-01-15", PaidDate: "2026-01-15"},
	}

	report := BuildReport(bills)
	require.Contains(t, report.Categories, "electricity")
	require.Contains(t, report.Categories, "water")

	elec := report.Categories["electricity"]
	assert.Equal(t, 2, elec.Total)
	assert.Equal(t, 1, elec.OnTime)
	assert.Equal(t, 1, elec.MinorDelay)
	assert.Equal(t, 3100.0, elec.TotalAmount)
	assert.Equal(t, 80.0, elec.WeightedScore, "(10+6)/20 * 100")

	water := report.Categories["water"]
	assert.Equal(t, 1, water.Total)
	assert.Equal(t, 100.0, water.WeightedScore)
}

func TestEmptyReport(t *testing.T) {
	report := BuildReport(nil)
	assert.Equal(t, 0, report.TotalBills)
	assert.Equal(t, 0.0, report.ReliabilityScore)
	assert.Equal(t, Stable, report.Trend)
}

func monthDue(m int) string {
	return fmt.Sprintf("2026-%02d-10", m)
}
