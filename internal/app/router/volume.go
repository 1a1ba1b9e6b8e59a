// Package router implements static connector routing: algorithm resolution, volume splitting,
// eligibility filtering and the session-flow variant.
package router

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

const component = "router"

type splitConfig struct {
	rng *rand.Rand
}

// SplitOption customises a volume split.
type SplitOption func(*splitConfig)

// WithSeed makes the split deterministic: the same seed and weights always pick the same index.
func WithSeed(seed string) SplitOption {
	return func(cfg *splitConfig) {
		h := xxhash.Sum64String(seed)
		cfg.rng = rand.New(rand.NewPCG(h, h^0x9e3779b97f4a7c15))
	}
}

// WithRand supplies the random source directly.
func WithRand(rng *rand.Rand) SplitOption {
	return func(cfg *splitConfig) {
		cfg.rng = rng
	}
}

// SampleIndex draws an index with probability proportional to its weight. It reports false
// when no weight is positive.
func SampleIndex(weights []uint64, opts ...SplitOption) (int, bool) {
	var total uint64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0, false
	}
	cfg := splitConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	var draw uint64
	if cfg.rng != nil {
		draw = cfg.rng.Uint64N(total)
	} else {
		draw = rand.Uint64N(total)
	}
	var cumulative uint64
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return i, true
		}
	}
	return len(weights) - 1, true
}

// SplitVolume samples one choice with probability proportional to its weight and returns it
// first, followed by the remaining choices in their original order. Zero weights are never
// sampled. Empty or all-zero input fails with VolumeSplitFailed.
func SplitVolume(choices []routing.VolumeSplitChoice, opts ...SplitOption) ([]routing.RoutableConnectorChoice, error) {
	weights := make([]uint64, len(choices))
	for i, c := range choices {
		weights[i] = uint64(c.Split)
	}
	picked, ok := SampleIndex(weights, opts...)
	if !ok {
		reason := "all weights are zero"
		if len(choices) == 0 {
			reason = "no choices"
		}
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalVolumeSplitFailed),
			errs.WithMessage("volume split: "+reason))
	}

	out := make([]routing.RoutableConnectorChoice, 0, len(choices))
	out = append(out, choices[picked].Connector)
	for i, c := range choices {
		if i != picked {
			out = append(out, c.Connector)
		}
	}
	return out, nil
}
