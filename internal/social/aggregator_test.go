package social

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novascore/engine/internal/enginerr"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url        string
		platform   string
		identifier string
	}{
		{"https://www.linkedin.com/in/jane-doe-42", PlatformLinkedIn, "jane-doe-42"},
		{"https://linkedin.com/in/janedoe/", PlatformLinkedIn, "janedoe"},
		{"https://twitter.com/jane_doe", PlatformTwitter, "jane_doe"},
		{"https://x.com/jane_doe", PlatformTwitter, "jane_doe"},
		{"https://www.instagram.com/jane.doe/", PlatformInstagram, "jane.doe"},
		{"https://youtube.com/@janedoe", PlatformYouTube, "janedoe"},
		{"https://www.youtube.com/channel/UCabc123", PlatformYouTube, "UCabc123"},
	}
	for _, tc := range cases {
		p, err := ValidateURL(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.platform, p.Platform, tc.url)
		assert.Equal(t, tc.identifier, p.Identifier, tc.url)
	}
}

func TestValidateURLRejects(t *testing.T) {
	for _, url := range []string{
		"",
		"not a url",
		"https://facebook.com/janedoe",
		"https://linkedin.com/company/acme",
	} {
		_, err := ValidateURL(url)
		require.Error(t, err, url)
		assert.Equal(t, "INVALID_PROFILE_URL", enginerr.CodeOf(err))
	}
}

type fixedFetcher struct{ meta Metadata }

func (f fixedFetcher) FetchMetadata(ctx context.Context, platform, identifier string) (*Metadata, error) {
	m := f.meta
	m.Platform = platform
	return &m, nil
}

type failingFetcher struct{}

func (failingFetcher) FetchMetadata(ctx context.Context, platform, identifier string) (*Metadata, error) {
	return nil, errors.New("oauth down")
}

func TestComputeScoreBounds(t *testing.T) {
	// Everything at or above the normalisation caps → 1.0.
	maxed := []*Metadata{{
		NetworkSize:        60000,
		PostsLast6Months:   300,
		AccountCreatedDays: 4000,
		InteractionRate:    2000,
	}}
	assert.Equal(t, 1.0, ComputeScore(maxed))

	// Everything zero → 0.
	assert.Equal(t, 0.0, ComputeScore([]*Metadata{{}}))
	assert.Equal(t, 0.0, ComputeScore(nil))
}

func TestComputeScoreMidpoints(t *testing.T) {
	// Half of each bound: network 25000/50000, posts 90/6=15 of 30,
	// age 1825/3650, interaction 500/1000 → 0.5 overall.
	metas := []*Metadata{{
		NetworkSize:        25000,
		PostsLast6Months:   90,
		AccountCreatedDays: 1825,
		InteractionRate:    500,
	}}
	assert.Equal(t, 0.5, ComputeScore(metas))
}

func TestComputeScoreUsesOldestAccount(t *testing.T) {
	metas := []*Metadata{
		{AccountCreatedDays: 3650},
		{AccountCreatedDays: 100},
	}
	// Only the age factor contributes: 0.25 * 1.0.
	assert.Equal(t, 0.25, ComputeScore(metas))
}

func TestAggregateHappyPath(t *testing.T) {
	agg := NewAggregator(fixedFetcher{meta: Metadata{
		NetworkSize:        25000,
		PostsLast6Months:   90,
		AccountCreatedDays: 1825,
		InteractionRate:    500,
	}})

	record, err := agg.Aggregate(context.Background(), []string{
		"https://linkedin.com/in/janedoe",
		"https://bad-url",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"linkedin"}, record.PlatformsUsed)
	assert.Equal(t, 0.5, record.SocialScore)
	assert.NotEmpty(t, record.CreatedAt)

	_, err = uuid.Parse(record.SessionID)
	assert.NoError(t, err, "session id must be a UUID")
}

func TestAggregateRequiresOneValidURL(t *testing.T) {
	agg := NewAggregator(fixedFetcher{})

	_, err := agg.Aggregate(context.Background(), nil)
	assert.Equal(t, enginerr.KindValidation, enginerr.KindOf(err))

	_, err = agg.Aggregate(context.Background(), []string{"https://bad", "also-bad"})
	assert.Equal(t, "INVALID_PROFILE_URL", enginerr.CodeOf(err))
}

func TestAggregateAllFetchesFailing(t *testing.T) {
	agg := NewAggregator(failingFetcher{})
	_, err := agg.Aggregate(context.Background(), []string{"https://x.com/janedoe"})
	require.Error(t, err)
	assert.Equal(t, enginerr.KindUpstream, enginerr.KindOf(err))
}

func TestSampleFetcherDeterministic(t *testing.T) {
	var f SampleFetcher
	a, err := f.FetchMetadata(context.Background(), "linkedin", "janedoe")
	require.NoError(t, err)
	b, err := f.FetchMetadata(context.Background(), "linkedin", "janedoe")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := f.FetchMetadata(context.Background(), "twitter", "janedoe")
	require.NoError(t, err)
	assert.NotEqual(t, a.NetworkSize, c.NetworkSize, "different platforms should differ")
}
