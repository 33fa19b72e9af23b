// Package ranking blends vector similarity with time decay so recent
// conversations surface ahead of equally relevant old ones.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// Params tunes the blend. Weight is the share of the combined score given to
// recency; Decay is the exponential time constant; results younger than
// RecentWindow get RecentBoost added before the recency score is capped at 1.
type Params struct {
	Weight       float64
	Decay        time.Duration
	RecentWindow time.Duration
	RecentBoost  float64
}

// DefaultParams returns the tuning the CLI ships with: a mild 15% recency
// share with a two-week decay and a small boost inside three days.
func DefaultParams() Params {
	return Params{
		Weight:       0.15,
		Decay:        14 * 24 * time.Hour,
		RecentWindow: 3 * 24 * time.Hour,
		RecentBoost:  0.05,
	}
}

// Score combines a semantic similarity with the age of the record:
//
//	combined = semantic*(1-w) + recency*w
//	recency  = min(1, exp(-age/decay) + boost_if_recent)
func Score(semantic float64, createdAt, now time.Time, p Params) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}

	recency := math.Exp(-age.Seconds() / p.Decay.Seconds())
	if age <= p.RecentWindow {
		recency += p.RecentBoost
	}
	if recency > 1 {
		recency = 1
	}

	return semantic*(1-p.Weight) + recency*p.Weight
}

// Rank fills Combined on each candidate and orders the slice by it,
// descending. Candidates arrive already threshold-filtered by the store;
// ties on the combined score fall back to raw similarity.
func Rank(candidates []models.SearchResult, now time.Time, p Params) []models.SearchResult {
	ranked := make([]models.SearchResult, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Combined = Score(ranked[i].Similarity, ranked[i].CreatedAt, now, p)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Combined != ranked[j].Combined {
			return ranked[i].Combined > ranked[j].Combined
		}
		return ranked[i].Similarity > ranked[j].Similarity
	})
	return ranked
}
