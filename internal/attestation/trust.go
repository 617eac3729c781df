package attestation

import (
	"math"
	"sync"
	"time"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

// Default tuning constants.
const (
	DefaultHalfLifeMs            = 7 * 24 * 60 * 60 * 1000
	DefaultExpectedDurationMs    = 60000
	DefaultMinOutcomesForConf    = 10
	DefaultColdStartScore        = 0.5
)

// Outcome is one recorded result contributing to a principal's trust
// history.
type Outcome struct {
	Success      bool
	QualityScore float64
	DurationMs   int64
	TimestampMs  int64
}

// Score is the composite result of Engine.GetScore.
type Score struct {
	Composite     float64
	Quality       float64
	Reliability   float64
	Speed         float64
	Confidence    float64
	TotalOutcomes int
}

func coldStart() Score {
	return Score{
		Composite: DefaultColdStartScore, Quality: DefaultColdStartScore,
		Reliability: DefaultColdStartScore, Speed: DefaultColdStartScore,
	}
}

// EngineConfig tunes the trust math; zero values take the defaults
// below.
type EngineConfig struct {
	HalfLifeMs            int64
	ExpectedDurationMs    int64
	MinOutcomesForConf    int
	ColdStartScore        float64
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.HalfLifeMs == 0 {
		c.HalfLifeMs = DefaultHalfLifeMs
	}
	if c.ExpectedDurationMs == 0 {
		c.ExpectedDurationMs = DefaultExpectedDurationMs
	}
	if c.MinOutcomesForConf == 0 {
		c.MinOutcomesForConf = DefaultMinOutcomesForConf
	}
	if c.ColdStartScore == 0 {
		c.ColdStartScore = DefaultColdStartScore
	}
	return c
}

// Engine maintains each principal's outcome history and computes its
// exponentially-decaying composite trust score.
type Engine struct {
	mu       sync.RWMutex
	cfg      EngineConfig
	profiles map[types.PrincipalID][]Outcome
}

// NewEngine constructs a trust engine. A zero-value cfg uses every default.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg.withDefaults(), profiles: make(map[types.PrincipalID][]Outcome)}
}

// RecordOutcome appends an Outcome derived from a completion
// attestation. qualityScore defaults to the verification score if
// present, else 1 on success and 0 on failure.
func (e *Engine) RecordOutcome(principal types.PrincipalID, a Attestation, nowMs int64) {
	quality := 0.0
	if a.Success {
		quality = 1.0
	}
	if a.Verification != nil && a.Verification.Score != nil {
		quality = *a.Verification.Score
	}
	o := Outcome{Success: a.Success, QualityScore: quality, DurationMs: a.DurationMs, TimestampMs: nowMs}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles[principal] = append(e.profiles[principal], o)
}

// GetScore computes principal's composite trust score as of nowMs.
// Unknown principals, or principals with no outcomes, get the
// cold-start score with zero confidence.
func (e *Engine) GetScore(principal types.PrincipalID, nowMs int64) Score {
	e.mu.RLock()
	outcomes := append([]Outcome{}, e.profiles[principal]...)
	e.mu.RUnlock()

	if len(outcomes) == 0 {
		return coldStart()
	}

	var sumWeight, sumReliability, sumQuality, sumSpeed float64
	for _, o := range outcomes {
		age := float64(nowMs - o.TimestampMs)
		if age < 0 {
			age = 0
		}
		weight := math.Exp(-math.Ln2 / float64(e.cfg.HalfLifeMs) * age)
		sumWeight += weight
		if o.Success {
			sumReliability += weight
		}
		sumQuality += weight * o.QualityScore
		duration := o.DurationMs
		if duration < 1 {
			duration = 1
		}
		speedRatio := math.Min(1, float64(e.cfg.ExpectedDurationMs)/float64(duration))
		sumSpeed += weight * speedRatio
	}

	reliability := sumReliability / sumWeight
	quality := sumQuality / sumWeight
	speed := sumSpeed / sumWeight
	confidence := math.Min(1, float64(len(outcomes))/float64(e.cfg.MinOutcomesForConf))

	composite := 0.4*reliability + 0.4*quality + 0.2*speed
	composite = math.Max(0, math.Min(1, composite))

	return Score{
		Composite: composite, Quality: quality, Reliability: reliability,
		Speed: speed, Confidence: confidence, TotalOutcomes: len(outcomes),
	}
}

// MeetsThreshold reports whether principal's composite score as of
// nowMs is at least minScore. Unknown principals get the cold-start
// score (0.5), so thresholds at or below 0.5 are trivially satisfied.
func (e *Engine) MeetsThreshold(principal types.PrincipalID, minScore float64, nowMs int64) bool {
	return e.GetScore(principal, nowMs).Composite >= minScore
}

// NowMs is a convenience for callers that track time with time.Time
// rather than a caller-supplied instant (the engine itself never calls
// this — every method takes nowMs explicitly for testability).
func NowMs(t time.Time) int64 { return t.UnixMilli() }
