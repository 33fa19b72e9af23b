package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanmatta/recollect/internal/models"
)

func TestScoreRecencyMonotonic(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	p := DefaultParams()

	// At equal semantic similarity, newer must never score below older.
	ages := []time.Duration{
		0,
		12 * time.Hour,
		2 * 24 * time.Hour,
		7 * 24 * time.Hour,
		30 * 24 * time.Hour,
		365 * 24 * time.Hour,
	}
	prev := 2.0
	for _, age := range ages {
		score := Score(0.9, now.Add(-age), now, p)
		assert.LessOrEqual(t, score, prev, "score must not increase with age %v", age)
		prev = score
	}
}

func TestScoreBounds(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	p := DefaultParams()

	// Brand new result with the boost: recency caps at 1.
	top := Score(1.0, now, now, p)
	assert.InDelta(t, 1.0, top, 1e-9)

	// Future timestamps behave like age zero rather than inflating scores.
	future := Score(1.0, now.Add(time.Hour), now, p)
	assert.InDelta(t, top, future, 1e-9)

	// Ancient result: recency term approaches zero.
	old := Score(0.9, now.Add(-10*365*24*time.Hour), now, p)
	assert.InDelta(t, 0.9*(1-p.Weight), old, 1e-6)
}

func TestScoreRecentBoostWindow(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	p := Params{Weight: 0.15, Decay: 14 * 24 * time.Hour, RecentWindow: 72 * time.Hour, RecentBoost: 0.05}

	inside := Score(0.5, now.Add(-71*time.Hour), now, p)
	outside := Score(0.5, now.Add(-73*time.Hour), now, p)
	assert.Greater(t, inside, outside)
	// The jump across the window edge exceeds what 2h of decay explains.
	assert.Greater(t, inside-outside, 0.04*p.Weight)
}

func TestRankOrdersByCombined(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	candidates := []models.SearchResult{
		{ID: "old-strong", Similarity: 0.95, CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: "new-weak", Similarity: 0.80, CreatedAt: now.Add(-time.Hour)},
		{ID: "new-strong", Similarity: 0.95, CreatedAt: now.Add(-time.Hour)},
	}

	ranked := Rank(candidates, now, DefaultParams())
	require.Len(t, ranked, 3)

	// new-strong: 0.95*0.85 + 1.0*0.15 ≈ 0.958
	// new-weak:   0.80*0.85 + 1.0*0.15 = 0.830
	// old-strong: 0.95*0.85 + exp(-60/14)*0.15 ≈ 0.810
	assert.Equal(t, "new-strong", ranked[0].ID)
	assert.Equal(t, "new-weak", ranked[1].ID)
	assert.Equal(t, "old-strong", ranked[2].ID)
	for _, r := range ranked {
		assert.NotZero(t, r.Combined)
	}

	// Input order untouched.
	assert.Equal(t, "old-strong", candidates[0].ID)
}

func TestRankZeroWeightIsPureSimilarity(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	p := Params{Weight: 0, Decay: time.Hour, RecentWindow: time.Hour, RecentBoost: 1}

	ranked := Rank([]models.SearchResult{
		{ID: "b", Similarity: 0.7, CreatedAt: now},
		{ID: "a", Similarity: 0.9, CreatedAt: now.Add(-1000 * time.Hour)},
	}, now, p)

	assert.Equal(t, "a", ranked[0].ID)
	assert.InDelta(t, 0.9, ranked[0].Combined, 1e-9)
}
