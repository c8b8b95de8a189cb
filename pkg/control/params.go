package control

import "github.com/dutyroster/scheduler-core/pkg/domain"

// EscapeStrategy is the closed set of metastability escape
// recommendations the Resilience subsystem may hand back to the loop.
// Defined here, rather than in the resilience package, so control has no dependency the other direction.
type EscapeStrategy string

const (
	ContinueSearch      EscapeStrategy = "CONTINUE_SEARCH"
	IncreaseTemperature EscapeStrategy = "INCREASE_TEMPERATURE"
	RestartNewSeed      EscapeStrategy = "RESTART_NEW_SEED"
	BasinHopping        EscapeStrategy = "BASIN_HOPPING"
	AcceptLocalOptimum  EscapeStrategy = "ACCEPT_LOCAL_OPTIMUM"
)

// Advisor is consulted once per iteration for a recommended escape
// strategy. A nil Advisor is equivalent to one that always recommends
// ContinueSearch.
type Advisor interface {
	Recommend(state domain.RunState) EscapeStrategy
}

// diversifyEvery is how often, in iterations without improvement, the
// loop diversifies with a fresh RNG seed even absent a resilience
// recommendation.
const diversifyEvery = 5

// SelectParams picks the next iteration's GeneratorParams per spec.md
// §4.4: defaults on the first iteration; otherwise a fresh seed every 5
// stagnant iterations or on an explicit RESTART_NEW_SEED recommendation;
// on INCREASE_TEMPERATURE an incremented seed and a diversification
// factor raised by 0.1 (capped at 1); else the same algorithm with an
// incremented seed.
func SelectParams(state domain.RunState, preferredAlgorithms []domain.Algorithm, advisor Advisor) domain.GeneratorParams {
	if state.CurrentIteration == 0 {
		return domain.DefaultGeneratorParams(preferredAlgorithms, state.RNGSeed)
	}

	recommendation := ContinueSearch
	if advisor != nil {
		recommendation = advisor.Recommend(state)
	}

	params := state.CurrentParams
	diversify := recommendation == RestartNewSeed ||
		(state.IterationsSinceImprovement > 0 && state.IterationsSinceImprovement%diversifyEvery == 0)

	switch {
	case diversify:
		params.Seed = state.RNGSeed + int64(state.CurrentIteration)
	case recommendation == IncreaseTemperature:
		params.Seed++
		params.DiversificationFactor = clamp01(params.DiversificationFactor + 0.1)
	default:
		params.Seed++
	}

	return params
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
