package attestation

import (
	"math"
	"sort"

	"github.com/dataparency-dev/delegation-core/internal/capability"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// RankWeights tunes how Rank balances cost, speed, trust and
// capability match when a delegator is choosing among several
// candidate delegatees for one task contract.
type RankWeights struct {
	Cost     float64
	Speed    float64
	Trust    float64
	CapMatch float64
}

// DefaultRankWeights balances all four dimensions evenly enough that
// no single one dominates.
func DefaultRankWeights() RankWeights {
	return RankWeights{Cost: 0.2, Speed: 0.2, Trust: 0.4, CapMatch: 0.2}
}

// HighStakesRankWeights favors trust and capability match for
// high-value or hard-to-verify tasks.
func HighStakesRankWeights() RankWeights {
	return RankWeights{Cost: 0.05, Speed: 0.1, Trust: 0.55, CapMatch: 0.3}
}

// CostSensitiveRankWeights favors cheap, fast candidates for routine,
// low-stakes tasks.
func CostSensitiveRankWeights() RankWeights {
	return RankWeights{Cost: 0.5, Speed: 0.3, Trust: 0.1, CapMatch: 0.1}
}

// Candidate is one principal offering to take on a delegated task.
type Candidate struct {
	Principal           types.PrincipalID
	EstimatedMicrocents  int64
	EstimatedDurationMs  int64
	OfferedCapabilities  []types.Capability
}

// Ranked pairs a candidate with its composite score and the per-
// dimension components that produced it, for audit/debugging.
type Ranked struct {
	Candidate Candidate
	Score     float64
	CostScore     float64
	SpeedScore    float64
	TrustScore    float64
	CapMatchScore float64
}

// Rank scores and orders candidates for a task requiring requiredCaps,
// consulting e for each candidate's current trust score as of nowMs.
// This generalizes a flat multi-objective bid ranking into one driven
// by the trust engine's composite score and the capability matcher's
// subset relation, rather than caller-supplied trust/capability maps.
func (e *Engine) Rank(candidates []Candidate, requiredCaps []types.Capability, weights RankWeights, nowMs int64) []Ranked {
	if len(candidates) == 0 {
		return nil
	}

	minCost, maxCost := math.MaxFloat64, 0.0
	minDuration, maxDuration := int64(math.MaxInt64), int64(0)
	for _, c := range candidates {
		cost := float64(c.EstimatedMicrocents)
		if cost < minCost {
			minCost = cost
		}
		if cost > maxCost {
			maxCost = cost
		}
		if c.EstimatedDurationMs < minDuration {
			minDuration = c.EstimatedDurationMs
		}
		if c.EstimatedDurationMs > maxDuration {
			maxDuration = c.EstimatedDurationMs
		}
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		costScore := 1.0
		if maxCost > minCost {
			costScore = 1.0 - (float64(c.EstimatedMicrocents)-minCost)/(maxCost-minCost)
		}
		speedScore := 1.0
		if maxDuration > minDuration {
			speedScore = 1.0 - float64(c.EstimatedDurationMs-minDuration)/float64(maxDuration-minDuration)
		}
		trustScore := e.GetScore(c.Principal, nowMs).Composite
		capScore := capabilityMatchScore(requiredCaps, c.OfferedCapabilities)

		total := weights.Cost*costScore + weights.Speed*speedScore +
			weights.Trust*trustScore + weights.CapMatch*capScore

		ranked[i] = Ranked{
			Candidate: c, Score: total,
			CostScore: costScore, SpeedScore: speedScore,
			TrustScore: trustScore, CapMatchScore: capScore,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// capabilityMatchScore is the fraction of requiredCaps that at least
// one of offered authorizes, via the same subset relation the DCT
// engine uses to validate narrowing.
func capabilityMatchScore(required, offered []types.Capability) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for _, r := range required {
		if capability.IsSubset(r, offered) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}
