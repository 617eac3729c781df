package attestation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

func TestGetScoreColdStartForUnknownPrincipal(t *testing.T) {
	e := NewEngine(EngineConfig{})
	score := e.GetScore("unknown-principal", 1_000_000)

	assert.Equal(t, DefaultColdStartScore, score.Composite)
	assert.Equal(t, DefaultColdStartScore, score.Quality)
	assert.Equal(t, DefaultColdStartScore, score.Reliability)
	assert.Equal(t, DefaultColdStartScore, score.Speed)
	assert.Equal(t, 0.0, score.Confidence)
	assert.Equal(t, 0, score.TotalOutcomes)
}

func TestMeetsThresholdTriviallySatisfiedForUnknownBelowColdStart(t *testing.T) {
	e := NewEngine(EngineConfig{})
	assert.True(t, e.MeetsThreshold("unknown-principal", 0.5, 0))
	assert.False(t, e.MeetsThreshold("unknown-principal", 0.6, 0))
}

func recordSuccess(e *Engine, principal types.PrincipalID, nowMs int64, durationMs int64) {
	e.RecordOutcome(principal, Attestation{Success: true, DurationMs: durationMs}, nowMs)
}

func recordFailure(e *Engine, principal types.PrincipalID, nowMs int64) {
	e.RecordOutcome(principal, Attestation{Success: false, DurationMs: 60000}, nowMs)
}

func TestGetScoreRewardsConsistentSuccessAndSpeed(t *testing.T) {
	e := NewEngine(EngineConfig{})
	principal := types.PrincipalID("reliable-worker")

	for i := 0; i < 10; i++ {
		recordSuccess(e, principal, int64(i)*1000, 30000) // twice as fast as the 60s default
	}

	score := e.GetScore(principal, 10_000)
	assert.Greater(t, score.Composite, 0.9)
	assert.Equal(t, 1.0, score.Confidence)
	assert.Equal(t, 10, score.TotalOutcomes)
}

func TestGetScorePenalizesFailures(t *testing.T) {
	e := NewEngine(EngineConfig{})
	principal := types.PrincipalID("unreliable-worker")

	for i := 0; i < 10; i++ {
		recordFailure(e, principal, int64(i)*1000)
	}

	score := e.GetScore(principal, 10_000)
	// Reliability and quality are 0; every failure took exactly the 60s
	// expected duration, so speed is 1 and contributes its full 0.2.
	assert.InDelta(t, 0.2, score.Composite, 1e-9)
}

func TestGetScoreWeightsRecentOutcomesMoreHeavily(t *testing.T) {
	e := NewEngine(EngineConfig{HalfLifeMs: 1000})
	principal := types.PrincipalID("improving-worker")

	for i := 0; i < 5; i++ {
		recordFailure(e, principal, 0)
	}
	// A long time later (many half-lives), the old failures have decayed
	// almost to nothing, so recent successes dominate.
	now := int64(100_000)
	for i := 0; i < 5; i++ {
		recordSuccess(e, principal, now, 60000)
	}

	score := e.GetScore(principal, now)
	assert.Greater(t, score.Reliability, 0.9)
}

func TestRecordOutcomeDefaultsQualityFromVerificationScore(t *testing.T) {
	e := NewEngine(EngineConfig{})
	principal := types.PrincipalID("scored-worker")
	score := 0.3

	e.RecordOutcome(principal, Attestation{
		Success:      true,
		Verification: &VerificationOutcome{Passed: true, Score: &score},
		DurationMs:   60000,
	}, 0)

	got := e.GetScore(principal, 0)
	assert.InDelta(t, 0.3, got.Quality, 0.0001)
}
