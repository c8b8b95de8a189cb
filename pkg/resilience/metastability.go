package resilience

import (
	"github.com/dutyroster/scheduler-core/pkg/control"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// SolverState is one point in the trajectory a MetastabilityAdvisor scores:
// the best objective known at a given control-loop iteration.
type SolverState struct {
	Iteration int
	Objective float64
}

// MetastabilityAnalysis is the outcome of inspecting a trajectory.
type MetastabilityAnalysis struct {
	IsMetastable        bool
	RecommendedStrategy control.EscapeStrategy
	Confidence          float64
}

// MetastabilityDetector classifies a solver trajectory as plateaued,
// stagnant, both, or healthy, per spec.md §4.5.
type MetastabilityDetector struct {
	PlateauThreshold float64
	PlateauWindow    int
	MinStagnation    int
}

// NewMetastabilityDetector returns a detector with the spec's defaults: a
// 1% plateau threshold over a 20-iteration window, 50 iterations without
// improvement to declare stagnation.
func NewMetastabilityDetector() *MetastabilityDetector {
	return &MetastabilityDetector{PlateauThreshold: 0.01, PlateauWindow: 20, MinStagnation: 50}
}

// Analyze inspects trajectory's tail and iterationsSinceImprovement and
// recommends an escape strategy. Confidence is
// iterationsSinceImprovement / MinStagnation, capped at 1.
func (d *MetastabilityDetector) Analyze(trajectory []SolverState, iterationsSinceImprovement int) MetastabilityAnalysis {
	plateaued := d.isPlateau(trajectory)
	stagnant := iterationsSinceImprovement >= d.MinStagnation
	if !plateaued && !stagnant {
		return MetastabilityAnalysis{RecommendedStrategy: control.ContinueSearch}
	}

	confidence := float64(iterationsSinceImprovement) / float64(d.MinStagnation)
	if confidence > 1 {
		confidence = 1
	}

	strategy := control.ContinueSearch
	switch {
	case iterationsSinceImprovement >= d.MinStagnation*4:
		strategy = control.RestartNewSeed
	case stagnant && plateaued:
		strategy = control.BasinHopping
	case plateaued:
		strategy = control.IncreaseTemperature
	case stagnant:
		strategy = control.AcceptLocalOptimum
	}

	return MetastabilityAnalysis{IsMetastable: true, RecommendedStrategy: strategy, Confidence: confidence}
}

func (d *MetastabilityDetector) isPlateau(trajectory []SolverState) bool {
	if len(trajectory) < d.PlateauWindow {
		return false
	}
	window := trajectory[len(trajectory)-d.PlateauWindow:]
	first, last := window[0].Objective, window[len(window)-1].Objective
	if first == 0 {
		return last == 0
	}
	relativeChange := (last - first) / first
	if relativeChange < 0 {
		relativeChange = -relativeChange
	}
	return relativeChange < d.PlateauThreshold
}

// MetastabilityAdvisor adapts a MetastabilityDetector to control.Advisor.
// It accumulates the run's best-score trajectory across calls and only
// re-analyzes every checkEvery iterations, matching the control loop's
// configurable consultation interval (default 50, per spec.md §4.5) rather
// than re-running the plateau scan on every single iteration.
type MetastabilityAdvisor struct {
	detector   *MetastabilityDetector
	checkEvery int
	trajectory []SolverState
	last       MetastabilityAnalysis
}

// NewMetastabilityAdvisor wires detector to a control.Advisor that
// consults it every checkEvery iterations (50 if checkEvery <= 0).
func NewMetastabilityAdvisor(detector *MetastabilityDetector, checkEvery int) *MetastabilityAdvisor {
	if checkEvery <= 0 {
		checkEvery = 50
	}
	return &MetastabilityAdvisor{detector: detector, checkEvery: checkEvery}
}

// Recommend implements control.Advisor.
func (a *MetastabilityAdvisor) Recommend(state domain.RunState) control.EscapeStrategy {
	a.trajectory = append(a.trajectory, SolverState{Iteration: state.CurrentIteration, Objective: state.BestScore})
	if state.CurrentIteration%a.checkEvery != 0 {
		return control.ContinueSearch
	}
	a.last = a.detector.Analyze(a.trajectory, state.IterationsSinceImprovement)
	return a.last.RecommendedStrategy
}

// LastAnalysis returns the most recent metastability analysis performed,
// for callers that want the full picture rather than just the strategy.
func (a *MetastabilityAdvisor) LastAnalysis() MetastabilityAnalysis {
	return a.last
}
