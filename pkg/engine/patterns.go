package engine

import (
	"context"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// Default learning knobs. The trust threshold is strict: a pattern sitting
// exactly on it is not yet trusted.
const (
	DefaultTrustThreshold      = 0.7
	DefaultReinforcementWeight = 0.1
)

// PatternStore exposes global learned patterns to the engine: trusted reads
// for assembly and outcome reinforcement from feedback. Patterns are shared
// across clients; only their success statistics change over time.
type PatternStore struct {
	store     Store
	threshold float64
	weight    float64
	scale     Scale
}

// NewPatternStore creates a pattern view with the given trust threshold and
// reinforcement weight. Non-positive values fall back to the defaults.
func NewPatternStore(store Store, threshold, weight float64, scale Scale) *PatternStore {
	if threshold <= 0 {
		threshold = DefaultTrustThreshold
	}
	if weight <= 0 {
		weight = DefaultReinforcementWeight
	}
	return &PatternStore{store: store, threshold: threshold, weight: weight, scale: scale.orDefault()}
}

// Threshold returns the configured trust threshold.
func (p *PatternStore) Threshold() float64 { return p.threshold }

// Weight returns the configured reinforcement weight.
func (p *PatternStore) Weight() float64 { return p.weight }

// ListTrusted returns the patterns whose success rate is strictly above the
// trust threshold, best first. Deterministic ties are the store's contract.
func (p *PatternStore) ListTrusted(ctx context.Context) ([]core.LearnedPattern, error) {
	return p.store.ListTrustedPatterns(ctx, p.threshold)
}

// RecordOutcome blends one satisfaction observation into a pattern's success
// rate. The score arrives on the configured satisfaction scale and is
// normalized to [0,1] before blending; an unknown pattern type is seeded from
// the single observation.
func (p *PatternStore) RecordOutcome(ctx context.Context, patternType string, score float64) error {
	if patternType == "" {
		return errors.New(errors.InvalidInput, "pattern type is required")
	}
	if err := p.scale.Validate(score); err != nil {
		return err
	}
	return p.store.UpsertPatternOutcome(ctx, patternType, p.scale.Normalize(score), p.weight)
}

// Scale is the inclusive satisfaction scale feedback arrives on. Min is the
// worst outcome, Max the best.
type Scale struct {
	Min float64
	Max float64
}

// DefaultScale is the 1-5 satisfaction scale.
var DefaultScale = Scale{Min: 1, Max: 5}

func (s Scale) orDefault() Scale {
	if s.Min >= s.Max {
		return DefaultScale
	}
	return s
}

// Validate rejects scores outside the inclusive scale bounds.
func (s Scale) Validate(score float64) error {
	if score < s.Min || score > s.Max {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "satisfaction score out of range"),
			errors.Fields{"score": score, "min": s.Min, "max": s.Max},
		)
	}
	return nil
}

// Normalize maps a score on the scale to [0,1].
func (s Scale) Normalize(score float64) float64 {
	return (score - s.Min) / (s.Max - s.Min)
}
