package strategies

import (
	"math/rand/v2"
	"sort"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// GreedySolver assigns Blocks to residents by simple round-robin, in
// training-year-then-name order, attaching a supervising faculty member
// wherever the chosen RotationTemplate requires one. It is the fallback
// every other variant retries through on failure, so it must never
// itself report failure when residents and blocks are both non-empty.
type GreedySolver struct{}

func (GreedySolver) Algorithm() domain.Algorithm { return domain.AlgorithmGreedy }

func (GreedySolver) Solve(ctx Context, params domain.GeneratorParams, rng *rand.Rand) Result {
	if len(ctx.Residents) == 0 || len(ctx.Blocks) == 0 {
		return Result{Success: false}
	}

	residents := sortedResidents(ctx.Residents)
	blocks := sortedBlocks(ctx.Blocks)
	templates := activeTemplates(ctx.Templates)

	assignments := make([]domain.Assignment, 0, len(blocks))
	for i, block := range blocks {
		resident := residents[i%len(residents)]
		assignment := domain.Assignment{
			BlockID:  block.ID,
			PersonID: resident.ID,
			Role:     domain.RolePrimary,
		}
		var template *domain.RotationTemplate
		if len(templates) > 0 {
			template = &templates[i%len(templates)]
			assignment.RotationTemplateID = template.ID
		}
		assignments = append(assignments, assignment)

		if template != nil && template.SupervisionRequired && len(ctx.Faculty) > 0 {
			supervisor := ctx.Faculty[i%len(ctx.Faculty)]
			assignments = append(assignments, domain.Assignment{
				BlockID:            block.ID,
				PersonID:           supervisor.ID,
				RotationTemplateID: template.ID,
				Role:               domain.RoleSupervising,
			})
		}
	}

	return Result{
		Assignments: assignments,
		Stats:       domain.SolverStats{NodesExplored: int64(len(blocks))},
		Success:     true,
	}
}

func sortedResidents(persons []domain.Person) []domain.Person {
	out := make([]domain.Person, len(persons))
	copy(out, persons)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrainingYear != out[j].TrainingYear {
			return out[i].TrainingYear < out[j].TrainingYear
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedBlocks(blocks []domain.Block) []domain.Block {
	out := make([]domain.Block, len(blocks))
	copy(out, blocks)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Session != out[j].Session {
			return out[i].Session == domain.SessionAM
		}
		return out[i].BlockNumber < out[j].BlockNumber
	})
	return out
}

func activeTemplates(templates []domain.RotationTemplate) []domain.RotationTemplate {
	out := make([]domain.RotationTemplate, 0, len(templates))
	for _, t := range templates {
		if !t.Archived {
			out = append(out, t)
		}
	}
	return out
}
