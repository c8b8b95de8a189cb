// Package generator is the unified facade over the candidate-generation
// strategies in pkg/generator/strategies: a single seam the control loop
// calls through without ever knowing which algorithm produced a
// Candidate. See pkg/generator/strategies for the dispatch table and
// variant implementations.
package generator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/generator/strategies"
	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

// CandidateGenerator wraps the strategies dispatch table with the
// preference-ordered algorithm list, fallback policy, and structured
// logging the control loop expects.
type CandidateGenerator struct {
	log                 *logrus.Logger
	preferredAlgorithms []domain.Algorithm
	allowFallback       bool
}

// New builds a CandidateGenerator. preferredAlgorithms orders the
// variants GenerateK draws from; allowFallback controls whether a
// failed non-greedy solve is retried with greedy before giving up.
func New(log *logrus.Logger, preferredAlgorithms []domain.Algorithm, allowFallback bool) *CandidateGenerator {
	return &CandidateGenerator{
		log:                 log,
		preferredAlgorithms: preferredAlgorithms,
		allowFallback:       allowFallback,
	}
}

// GenerateSingle produces one Candidate for the given params, or nil on
// infeasible solve. It never returns an error: solver failure is logged
// and reported as a nil Candidate so the control loop can pick the next
// parameter set.
func (g *CandidateGenerator) GenerateSingle(ctx strategies.Context, params domain.GeneratorParams) *domain.Candidate {
	return g.generateSingle(ctx, params)
}

// GenerateK produces up to k Candidates using distinct algorithms from
// the preference list. k = 1 returns a single attempt at params'
// requested algorithm, matching GenerateSingle.
func (g *CandidateGenerator) GenerateK(ctx strategies.Context, params domain.GeneratorParams, k int) []domain.Candidate {
	if k <= 1 {
		if c := g.generateSingle(ctx, params); c != nil {
			return []domain.Candidate{*c}
		}
		return nil
	}

	var out []domain.Candidate
	for _, algo := range g.selectAlgorithms(k) {
		p := params
		p.Algorithm = algo
		if c := g.generateSingle(ctx, p); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// GenerateWithRestart runs n restarts of base_params' algorithm, each
// with RNG seed base.Seed + i and a timeout/n share of the original
// budget, per the diversification contract in spec.md §4.1.
func (g *CandidateGenerator) GenerateWithRestart(ctx strategies.Context, base domain.GeneratorParams, n int) []domain.Candidate {
	if n < 1 {
		n = 1
	}

	var out []domain.Candidate
	for i := 0; i < n; i++ {
		p := base
		p.Seed = base.Seed + int64(i)
		p.TimeoutSeconds = base.TimeoutSeconds / float64(n)
		if c := g.generateSingle(ctx, p); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// GenerateWithPerturbation replaces ceil(rate*|assignments|) assignments
// of base by swapping either the Person or the Block uniformly at
// random. The result is not re-validated: feasible=true means
// "construction completed", not "constraint-clean".
func (g *CandidateGenerator) GenerateWithPerturbation(ctx strategies.Context, base domain.Candidate, rate float64) *domain.Candidate {
	if len(ctx.Residents) == 0 || len(ctx.Blocks) == 0 || len(base.Assignments) == 0 {
		return nil
	}

	numToPerturb := int(math.Ceil(rate * float64(len(base.Assignments))))
	if numToPerturb < 1 {
		numToPerturb = 1
	}

	assignments := make([]domain.Assignment, len(base.Assignments))
	copy(assignments, base.Assignments)

	rng := rand.New(rand.NewPCG(uint64(base.Params.Seed), uint64(base.Params.Seed)+1))
	for i := 0; i < numToPerturb; i++ {
		idx := rng.IntN(len(assignments))
		old := assignments[idx]
		if rng.Float64() < 0.5 {
			assignments[idx] = domain.Assignment{
				BlockID:            old.BlockID,
				PersonID:           ctx.Residents[rng.IntN(len(ctx.Residents))].ID,
				RotationTemplateID: old.RotationTemplateID,
				Role:               old.Role,
			}
		} else {
			assignments[idx] = domain.Assignment{
				BlockID:            ctx.Blocks[rng.IntN(len(ctx.Blocks))].ID,
				PersonID:           old.PersonID,
				RotationTemplateID: old.RotationTemplateID,
				Role:               old.Role,
			}
		}
	}

	return &domain.Candidate{
		Assignments: assignments,
		Algorithm:   base.Algorithm,
		Params:      base.Params,
		Stats:       domain.SolverStats{Gap: rate},
		Feasible:    true,
	}
}

func (g *CandidateGenerator) generateSingle(ctx strategies.Context, params domain.GeneratorParams) *domain.Candidate {
	fields := logging.NewFields().Component("generator").Operation("generate_single").Custom("algorithm", string(params.Algorithm))

	solver, ok := strategies.Lookup(params.Algorithm)
	if !ok {
		g.log.WithFields(fields.ToLogrus()).Warn("unknown algorithm requested")
		if !g.allowFallback {
			return nil
		}
		solver = strategies.GreedySolver{}
		params.Algorithm = domain.AlgorithmGreedy
	}

	start := time.Now()
	rng := rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.Seed)))
	result := solver.Solve(ctx, params, rng)
	resolvedAlgorithm := params.Algorithm

	if !result.Success && g.allowFallback && params.Algorithm != domain.AlgorithmGreedy {
		g.log.WithFields(fields.ToLogrus()).Info("falling back to greedy after solver failure")
		rng = rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.Seed)))
		result = strategies.GreedySolver{}.Solve(ctx, params, rng)
		resolvedAlgorithm = domain.AlgorithmGreedy
	}

	elapsed := time.Since(start)
	if !result.Success {
		g.log.WithFields(fields.Duration(elapsed).ToLogrus()).Warn("candidate generation failed")
		return nil
	}

	return &domain.Candidate{
		Assignments: result.Assignments,
		Algorithm:   resolvedAlgorithm,
		Params:      params,
		Stats:       result.Stats,
		RuntimeMS:   elapsed.Milliseconds(),
		Feasible:    result.Success,
		Objective:   -result.Stats.Gap,
	}
}

// selectAlgorithms mirrors the original preference-order selection: if
// k is at least as large as the configured list, every configured
// algorithm is tried once; otherwise the first k in preference order.
func (g *CandidateGenerator) selectAlgorithms(k int) []domain.Algorithm {
	if k >= len(g.preferredAlgorithms) {
		return g.preferredAlgorithms
	}
	return g.preferredAlgorithms[:k]
}
