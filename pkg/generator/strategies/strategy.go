// Package strategies holds the candidate-generation algorithm variants
// and the closed dispatch table the generator facade looks them up
// through. Strategy selection is by domain.Algorithm name only — no
// variant's identity leaks past this package.
package strategies

import (
	"math/rand/v2"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// Context is the read-only input every Solver receives: the residents
// and faculty available for the period, the Blocks to fill, and the
// RotationTemplates to draw from.
type Context struct {
	Residents []domain.Person
	Faculty   []domain.Person
	Blocks    []domain.Block
	Templates []domain.RotationTemplate
}

// Result is a solver's raw output before the generator facade wraps it
// into a domain.Candidate.
type Result struct {
	Assignments []domain.Assignment
	Stats       domain.SolverStats
	Success     bool
}

// Solver produces one Result from a Context, GeneratorParams, and a
// locally-seeded RNG. Implementations must draw randomness only from
// the supplied rng — never a global source — to satisfy the generator's
// determinism contract.
type Solver interface {
	Algorithm() domain.Algorithm
	Solve(ctx Context, params domain.GeneratorParams, rng *rand.Rand) Result
}

// Dispatch is the closed algorithm-name -> Solver table. Adding a
// variant means adding an entry here, never a type switch scattered
// through the generator.
var Dispatch = map[domain.Algorithm]Solver{
	domain.AlgorithmGreedy:                GreedySolver{},
	domain.AlgorithmConstraintProgramming: LocalSearchSolver{Name: domain.AlgorithmConstraintProgramming, Iterations: 200},
	domain.AlgorithmMILP:                  LocalSearchSolver{Name: domain.AlgorithmMILP, Iterations: 400},
	domain.AlgorithmHybrid:                LocalSearchSolver{Name: domain.AlgorithmHybrid, Iterations: 100},
}

// Lookup returns the Solver registered for algo, and whether one exists.
func Lookup(algo domain.Algorithm) (Solver, bool) {
	s, ok := Dispatch[algo]
	return s, ok
}
