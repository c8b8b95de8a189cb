package strategies

import (
	"math/rand/v2"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// LocalSearchSolver stands in for the constraint-programming, MILP, and
// hybrid variants named in domain.Algorithm. The corpus has no Go
// equivalent of OR-Tools or Pyomo to bind to (see DESIGN.md), so each
// variant instead starts from the greedy construction and hill-climbs
// it for a fixed iteration budget, accepting a random single-assignment
// move only when it does not worsen the constraint-violation weight.
// This is the adapter seam spec.md §9 leaves open for a real solver
// binding to replace later without touching the dispatch table.
type LocalSearchSolver struct {
	Name       domain.Algorithm
	Iterations int
}

func (s LocalSearchSolver) Algorithm() domain.Algorithm { return s.Name }

func (s LocalSearchSolver) Solve(ctx Context, params domain.GeneratorParams, rng *rand.Rand) Result {
	seed := GreedySolver{}.Solve(ctx, params, rng)
	if !seed.Success {
		return Result{Success: false}
	}

	current := seed.Assignments
	currentWeight := violationWeight(ctx, current)

	iterations := s.Iterations
	for i := 0; i < iterations; i++ {
		candidate := mutateOneAssignment(current, ctx, rng)
		weight := violationWeight(ctx, candidate)
		if weight <= currentWeight {
			current = candidate
			currentWeight = weight
		}
	}

	return Result{
		Assignments: current,
		Stats:       domain.SolverStats{NodesExplored: int64(iterations), Gap: currentWeight},
		Success:     true,
	}
}

// violationWeight scores an assignment set by the same severity weights
// the evaluator uses, lower being better. It reuses the constraint
// engine directly rather than re-deriving duty-hour logic here.
func violationWeight(ctx Context, assignments []domain.Assignment) float64 {
	persons := make(map[string]domain.Person, len(ctx.Residents)+len(ctx.Faculty))
	for _, p := range ctx.Residents {
		persons[p.ID] = p
	}
	for _, p := range ctx.Faculty {
		persons[p.ID] = p
	}
	blocks := make(map[string]domain.Block, len(ctx.Blocks))
	for _, b := range ctx.Blocks {
		blocks[b.ID] = b
	}
	templates := make(map[string]domain.RotationTemplate, len(ctx.Templates))
	for _, t := range ctx.Templates {
		templates[t.ID] = t
	}

	report := constraints.Validate(constraints.Input{
		Assignments: assignments,
		Persons:     persons,
		Blocks:      blocks,
		Templates:   templates,
	})

	var weight float64
	for severity, count := range report.ViolationCounts {
		weight += domain.SeverityWeight(severity) * float64(count)
	}
	return weight
}

// mutateOneAssignment swaps the Person or Block of one randomly-chosen
// assignment, mirroring the perturbation move generate_with_perturbation
// uses.
func mutateOneAssignment(assignments []domain.Assignment, ctx Context, rng *rand.Rand) []domain.Assignment {
	if len(assignments) == 0 {
		return assignments
	}
	out := make([]domain.Assignment, len(assignments))
	copy(out, assignments)

	idx := rng.IntN(len(out))
	if rng.Float64() < 0.5 && len(ctx.Residents) > 0 {
		out[idx].PersonID = ctx.Residents[rng.IntN(len(ctx.Residents))].ID
	} else if len(ctx.Blocks) > 0 {
		out[idx].BlockID = ctx.Blocks[rng.IntN(len(ctx.Blocks))].ID
	}
	return out
}
