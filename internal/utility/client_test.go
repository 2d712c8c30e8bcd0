package utility

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novascore/engine/internal/enginerr"
)

type failingDoer struct{}

func (failingDoer) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("bbps down")
}

type jsonDoer struct{ body string }

func (d jsonDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(d.body)),
	}, nil
}

func TestFetchDegradedSample(t *testing.T) {
	f := NewFetcher(Config{BaseURL: "https://bbps.example"}, failingDoer{})

	report, err := f.Fetch(context.Background(), "CONS-42")
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.Equal(t, 48, report.TotalBills, "12 months x 4 categories")
	assert.Len(t, report.Categories, 4)

	// Deterministic per consumer.
	again, err := f.Fetch(context.Background(), "CONS-42")
	require.NoError(t, err)
	assert.Equal(t, report.ReliabilityScore, again.ReliabilityScore)
}

func TestFetchParsesUpstreamBills(t *testing.T) {
	body := `{"bills":[
		{"billId":"b1","category":"electricity","amount":1500,"dueDate":"2026-01-10","paidDate":"2026-01-09"},
		{"billId":"b2","category":"electricity","amount":1600,"dueDate":"2026-02-10"}
	]}`
	f := NewFetcher(Config{BaseURL: "https://bbps.example"}, jsonDoer{body: body})

	report, err := f.Fetch(context.Background(), "CONS-42")
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Equal(t, 2, report.TotalBills)
	assert.Equal(t, 1, report.OnTime)
	assert.Equal(t, 1, report.Unpaid)
	assert.Equal(t, 50.0, report.ReliabilityScore)
}

func TestFetchProductionSurfacesUpstream(t *testing.T) {
	f := NewFetcher(Config{Production: true}, failingDoer{})
	_, err := f.Fetch(context.Background(), "CONS-42")
	require.Error(t, err)
	assert.Equal(t, enginerr.KindUpstream, enginerr.KindOf(err))
}

func TestFetchRequiresConsumerID(t *testing.T) {
	f := NewFetcher(Config{}, failingDoer{})
	_, err := f.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, enginerr.KindValidation, enginerr.KindOf(err))
}
