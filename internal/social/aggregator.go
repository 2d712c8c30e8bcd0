// Package social validates public profile URLs, fetches per-platform
// metadata through a pluggable capability and computes a weighted social
// presence score. Only the score is persisted, never handles or URLs.
package social

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
)

// Platform identifiers.
const (
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
)

// platformPatterns extract the account identifier from a profile URL.
var platformPatterns = []struct {
	platform string
	re       *regexp.Regexp
}{
	{PlatformLinkedIn, regexp.MustCompile(`^https?://(?:www\.)?linkedin\.com/in/([A-Za-z0-9_-]+)/?`)},
	{PlatformTwitter, regexp.MustCompile(`^https?://(?:www\.)?(?:twitter|x)\.com/([A-Za-z0-9_]+)/?`)},
	{PlatformInstagram, regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/([A-Za-z0-9_.]+)/?`)},
	{PlatformYouTube, regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/(?:@|c/|channel/)([A-Za-z0-9_-]+)/?`)},
}

// Normalisation bounds for the score formula.
const (
	maxNetwork         = 50000.0
	maxPostsPerMonth   = 30.0
	maxAccountAgeDays  = 3650.0
	maxInteractionRate = 1000.0
)

// Metadata is the per-platform evidence a fetcher returns.
type Metadata struct {
	Platform           string  `json:"platform"`
	NetworkSize        float64 `json:"networkSize"`
	PostsLast6Months   float64 `json:"postsLast6Months"`
	AccountCreatedDays float64 `json:"accountCreatedDays"`
	InteractionRate    float64 `json:"interactionRate"`
}

// PlatformFetcher retrieves metadata for one validated profile. Real
// implementations sit behind each platform's OAuth contract.
type PlatformFetcher interface {
	FetchMetadata(ctx context.Context, platform, identifier string) (*Metadata, error)
}

// Profile is a validated (platform, identifier) pair.
type Profile struct {
	Platform   string `json:"platform"`
	Identifier string `json:"identifier"`
}

// Record is the persisted outcome. Deliberately minimal.
type Record struct {
	SessionID     string   `json:"session_id"`
	SocialScore   float64  `json:"social_score"`
	PlatformsUsed []string `json:"platforms_used"`
	CreatedAt     string   `json:"created_at"`
}

// Aggregator runs the validate-fetch-score pipeline.
type Aggregator struct {
	fetcher PlatformFetcher
	logger  *log.Logger
	now     func() time.Time
}

// NewAggregator wires the social aggregator around a platform fetcher.
func NewAggregator(fetcher PlatformFetcher) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		logger:  log.New(log.Writer(), "[SOCIAL] ", log.LstdFlags),
		now:     time.Now,
	}
}

// ValidateURL resolves a profile URL to its platform and identifier.
func ValidateURL(raw string) (Profile, error) {
	for _, p := range platformPatterns {
		if m := p.re.FindStringSubmatch(raw); m != nil {
			return Profile{Platform: p.platform, Identifier: m[1]}, nil
		}
	}
	return Profile{}, enginerr.Validation("INVALID_PROFILE_URL", "unrecognised profile url %q", raw)
}

// Aggregate validates the URLs, fetches metadata per platform and computes
// the weighted score. At least one URL must validate; invalid ones are
// reported and skipped.
func (a *Aggregator) Aggregate(ctx context.Context, urls []string) (*Record, error) {
	if len(urls) == 0 {
		return nil, enginerr.Validation("VALIDATION", "at least one profile url is required")
	}

	var profiles []Profile
	for _, raw := range urls {
		profile, err := ValidateURL(raw)
		if err != nil {
			a.logger.Printf("⚠️ dropping invalid profile url")
			continue
		}
		profiles = append(profiles, profile)
	}
	if len(profiles) == 0 {
		return nil, enginerr.Validation("INVALID_PROFILE_URL", "no valid profile urls supplied")
	}

	var fetched []*Metadata
	var platforms []string
	for _, profile := range profiles {
		meta, err := a.fetcher.FetchMetadata(ctx, profile.Platform, profile.Identifier)
		if err != nil {
			a.logger.Printf("⚠️ metadata fetch failed for %s: %v", profile.Platform, err)
			continue
		}
		fetched = append(fetched, meta)
		platforms = append(platforms, profile.Platform)
	}
	if len(fetched) == 0 {
		return nil, enginerr.Upstream("UPSTREAM", "no platform metadata could be fetched")
	}
	sort.Strings(platforms)

	return &Record{
		SessionID:     uuid.NewString(),
		SocialScore:   ComputeScore(fetched),
		PlatformsUsed: platforms,
		CreatedAt:     a.now().UTC().Format(time.RFC3339),
	}, nil
}

// ComputeScore applies the four-factor weighted formula: network size,
// posting frequency, account age (oldest account) and interaction rate,
// each clamp-normalised and weighted 0.25.
func ComputeScore(metas []*Metadata) float64 {
	if len(metas) == 0 {
		return 0
	}

	var network, posts, interaction, oldestAge float64
	for _, m := range metas {
		network += m.NetworkSize
		posts += m.PostsLast6Months
		interaction += m.InteractionRate
		if m.AccountCreatedDays > oldestAge {
			oldestAge = m.AccountCreatedDays
		}
	}
	postFrequency := posts / 6

	score := 0.25*clampNorm(network, maxNetwork) +
		0.25*clampNorm(postFrequency, maxPostsPerMonth) +
		0.25*clampNorm(oldestAge, maxAccountAgeDays) +
		0.25*clampNorm(interaction, maxInteractionRate)
	return round4(score)
}

func clampNorm(x, max float64) float64 {
	if max <= 0 {
		return 0
	}
	n := x / max
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// SampleFetcher synthesises plausible metadata, deterministic per
// (platform, identifier). Used when no OAuth-backed fetcher is configured.
type SampleFetcher struct{}

// FetchMetadata generates the sample shape for one profile.
func (SampleFetcher) FetchMetadata(ctx context.Context, platform, identifier string) (*Metadata, error) {
	digest := cryptoutil.SHA256Hex([]byte(platform + ":" + identifier))
	seed := int64(binary.BigEndian.Uint64([]byte(digest[:8])))
	rng := rand.New(rand.NewSource(seed))

	return &Metadata{
		Platform:           platform,
		NetworkSize:        math.Floor(rng.Float64() * 20000),
		PostsLast6Months:   math.Floor(rng.Float64() * 120),
		AccountCreatedDays: math.Floor(365 + rng.Float64()*2500),
		InteractionRate:    math.Floor(rng.Float64() * 600),
	}, nil
}

func round4(n float64) float64 { return math.Round(n*10000) / 10000 }
