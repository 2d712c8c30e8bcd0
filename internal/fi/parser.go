// Package fi normalises decrypted financial-information payloads into typed
// transactions and computes cashflow analytics. The extractor is
// shape-tolerant: FIPs return transaction lists under several envelopes and
// the parser accepts all of them.
package fi

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// TxnType distinguishes money in from money out.
type TxnType string

const (
	Credit TxnType = "CREDIT"
	Debit  TxnType = "DEBIT"
)

// Transaction is the normalised record every analyser consumes.
type Transaction struct {
	TxnID     string  `json:"txnId"`
	Date      string  `json:"date"`
	Type      TxnType `json:"type"`
	Mode      string  `json:"mode"`
	Amount    float64 `json:"amount"`
	Balance   float64 `json:"balance"`
	Narration string  `json:"narration"`
	Reference string  `json:"reference"`
	Category  string  `json:"category"`
	MCC       string  `json:"mcc,omitempty"`
}

// CategoryStat aggregates count and amount per narration category.
type CategoryStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// RecurringPayment is a repeated debit with a stable amount and narration.
type RecurringPayment struct {
	Narration   string  `json:"narration"`
	Amount      float64 `json:"amount"`
	Occurrences int     `json:"occurrences"`
	Frequency   string  `json:"frequency"`
}

// Analysis is the cashflow summary over a normalised transaction set.
type Analysis struct {
	TotalInflow       float64                 `json:"totalInflow"`
	TotalOutflow      float64                 `json:"totalOutflow"`
	NetFlow           float64                 `json:"netFlow"`
	SavingsRate       float64                 `json:"savingsRate"`
	CreditCount       int                     `json:"creditCount"`
	DebitCount        int                     `json:"debitCount"`
	CategoryBreakdown map[string]CategoryStat `json:"categoryBreakdown"`
	RecurringPayments []RecurringPayment      `json:"recurringPayments"`
	Credits           []Transaction           `json:"credits"`
	Debits            []Transaction           `json:"debits"`
	Transactions      []Transaction           `json:"-"`
}

const sampleCap = 50

// categoryKeywords maps narration substrings to spending categories.
// First match wins; order is most-specific first.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Salary", []string{"salary", "sal credit", "payroll"}},
	{"Rent", []string{"rent", "lease"}},
	{"Utilities", []string{"electricity", "water bill", "gas bill", "utility", "broadband", "recharge"}},
	{"EMI", []string{"emi", "loan", "repayment"}},
	{"Investment", []string{"sip", "mutual fund", "invest", "zerodha", "groww"}},
	{"Shopping", []string{"amazon", "flipkart", "myntra", "shopping", "mart"}},
	{"Food", []string{"swiggy", "zomato", "restaurant", "food", "grocer"}},
	{"Travel", []string{"uber", "ola", "irctc", "flight", "travel", "petrol", "fuel"}},
	{"UPI_Transfer", []string{"upi/", "upi-", "vpa", "@ok", "@ybl", "@paytm"}},
}

// ExtractRecords accepts any of the FIP response shapes and returns the raw
// record list: a top-level array, Account.Transactions.Transaction (array or
// single object), Transactions, transactions, data, or a single
// transaction-like object.
func ExtractRecords(raw []byte) ([]map[string]interface{}, error) {
	var top interface{}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("fi parse: %w", err)
	}
	return coerceRecords(top)
}

func coerceRecords(top interface{}) ([]map[string]interface{}, error) {
	switch v := top.(type) {
	case []interface{}:
		return toRecordList(v), nil
	case map[string]interface{}:
		if acct, ok := v["Account"].(map[string]interface{}); ok {
			if txns, ok := acct["Transactions"].(map[string]interface{}); ok {
				if inner, ok := txns["Transaction"]; ok {
					return coerceRecords(inner)
				}
			}
		}
		for _, key := range []string{"Transactions", "transactions", "data"} {
			if inner, ok := v[key]; ok {
				return coerceRecords(inner)
			}
		}
		// A single transaction-like object.
		if looksLikeTransaction(v) {
			return []map[string]interface{}{v}, nil
		}
		return nil, fmt.Errorf("fi parse: unrecognised payload shape")
	default:
		return nil, fmt.Errorf("fi parse: unrecognised payload shape")
	}
}

func toRecordList(items []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

func looksLikeTransaction(rec map[string]interface{}) bool {
	for _, key := range []string{"amount", "Amount", "txnAmount", "narration", "Narration", "txnId", "transactionId"} {
		if _, ok := rec[key]; ok {
			return true
		}
	}
	return false
}

// Normalize maps one raw record to the Transaction schema.
func Normalize(rec map[string]interface{}) Transaction {
	narration := pickString(rec, "narration", "Narration", "description", "Description", "remarks", "particulars")

	t := Transaction{
		TxnID:     pickString(rec, "txnId", "txnid", "TxnId", "transactionId", "id", "_id"),
		Date:      pickString(rec, "date", "Date", "transactionTimestamp", "valueDate", "txnDate", "timestamp"),
		Mode:      strings.ToUpper(pickString(rec, "mode", "Mode", "txnMode", "channel")),
		Amount:    pickAmount(rec, "amount", "Amount", "txnAmount", "value"),
		Balance:   pickAmount(rec, "balance", "Balance", "currentBalance", "closingBalance"),
		Narration: narration,
		Reference: pickString(rec, "reference", "Reference", "ref", "utr", "refNumber"),
	}
	t.Type = detectType(rec, narration)
	t.Category = inferCategory(narration)
	t.MCC = pickString(rec, "mcc", "MCC", "merchantCategoryCode")
	return t
}

// detectType reads the explicit type field first, then narration keywords,
// and defaults to DEBIT.
func detectType(rec map[string]interface{}, narration string) TxnType {
	explicit := strings.ToUpper(pickString(rec, "type", "Type", "txnType", "drCr"))
	switch explicit {
	case "CREDIT", "CR", "C":
		return Credit
	case "DEBIT", "DR", "D":
		return Debit
	}

	lower := strings.ToLower(narration)
	for _, kw := range []string{"credit", "received", "deposit"} {
		if strings.Contains(lower, kw) {
			return Credit
		}
	}
	return Debit
}

func inferCategory(narration string) string {
	lower := strings.ToLower(narration)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return "Misc"
}

// Analyze extracts, normalises and summarises a raw FI payload.
func Analyze(raw []byte) (*Analysis, error) {
	records, err := ExtractRecords(raw)
	if err != nil {
		return nil, err
	}

	txns := make([]Transaction, 0, len(records))
	for _, rec := range records {
		txns = append(txns, Normalize(rec))
	}
	return AnalyzeTransactions(txns), nil
}

// AnalyzeTransactions computes the cashflow summary over already-normalised
// transactions.
func AnalyzeTransactions(txns []Transaction) *Analysis {
	a := &Analysis{
		CategoryBreakdown: make(map[string]CategoryStat),
		RecurringPayments: []RecurringPayment{},
		Credits:           []Transaction{},
		Debits:            []Transaction{},
		Transactions:      txns,
	}

	var inflow, outflow float64
	for _, t := range txns {
		stat := a.CategoryBreakdown[t.Category]
		stat.Count++
		stat.Amount = round2(stat.Amount + t.Amount)
		a.CategoryBreakdown[t.Category] = stat

		if t.Type == Credit {
			inflow += t.Amount
			a.CreditCount++
			if len(a.Credits) < sampleCap {
				a.Credits = append(a.Credits, t)
			}
		} else {
			outflow += t.Amount
			a.DebitCount++
			if len(a.Debits) < sampleCap {
				a.Debits = append(a.Debits, t)
			}
		}
	}

	a.TotalInflow = round2(inflow)
	a.TotalOutflow = round2(outflow)
	a.NetFlow = round2(inflow - outflow)
	if a.TotalInflow > 0 {
		a.SavingsRate = round2(a.NetFlow / a.TotalInflow)
	}
	a.RecurringPayments = detectRecurring(txns)
	return a
}

// detectRecurring groups debits by amount plus narration prefix, keeps
// groups seen at least twice, and returns at most five.
func detectRecurring(txns []Transaction) []RecurringPayment {
	type group struct {
		narration string
		amount    float64
		count     int
		firstSeen int
	}
	groups := make(map[string]*group)
	order := []string{}

	for i, t := range txns {
		if t.Type != Debit {
			continue
		}
		prefix := t.Narration
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
		key := fmt.Sprintf("%.2f|%s", t.Amount, strings.ToLower(prefix))
		g, ok := groups[key]
		if !ok {
			g = &group{narration: t.Narration, amount: t.Amount, firstSeen: i}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}

	var out []RecurringPayment
	for _, key := range order {
		g := groups[key]
		if g.count < 2 {
			continue
		}
		freq := "Monthly"
		if g.count > 5 {
			freq = "Weekly/Biweekly"
		}
		out = append(out, RecurringPayment{
			Narration:   g.narration,
			Amount:      g.amount,
			Occurrences: g.count,
			Frequency:   freq,
		})
		if len(out) == 5 {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Occurrences > out[j].Occurrences })
	return out
}

func pickString(rec map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := rec[key]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

// pickAmount parses a non-negative real from the first present key.
// NaN and negatives become 0; string amounts are accepted.
func pickAmount(rec map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		v, ok := rec[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return sanitizeAmount(n)
		case string:
			cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
			parsed, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				return 0
			}
			return sanitizeAmount(parsed)
		}
	}
	return 0
}

func sanitizeAmount(n float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	return n
}

func round2(n float64) float64 {
	return math.Round(n*100) / 100
}
