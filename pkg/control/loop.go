package control

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/evaluator"
	"github.com/dutyroster/scheduler-core/pkg/generator"
	"github.com/dutyroster/scheduler-core/pkg/generator/strategies"
	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

// maxConsecutiveErrors is the FatalRunError policy from spec.md §7:
// three consecutive iteration exceptions move the run to failed.
const maxConsecutiveErrors = 3

// Loop drives one Run: select params, generate, evaluate, persist,
// decide. It is a single-goroutine cooperative loop; its only
// concurrency with the outside world is reading Advisor recommendations
// and writing artifacts.
type Loop struct {
	log                 *logrus.Logger
	store               *RunStore
	gen                 *generator.CandidateGenerator
	advisor             Advisor
	preferredAlgorithms []domain.Algorithm
	genContext          strategies.Context
	constraintsBase     constraints.Input
	expectedAssignments int
}

// NewLoop wires a Loop from its collaborators. constraintsBase supplies
// the Persons/Blocks/Templates/Absences/Swaps/Moonlighting every
// Candidate in this run is evaluated against; its Assignments field is
// ignored and overwritten per-candidate.
func NewLoop(
	log *logrus.Logger,
	store *RunStore,
	gen *generator.CandidateGenerator,
	advisor Advisor,
	preferredAlgorithms []domain.Algorithm,
	genContext strategies.Context,
	constraintsBase constraints.Input,
	expectedAssignments int,
) *Loop {
	return &Loop{
		log:                 log,
		store:               store,
		gen:                 gen,
		advisor:             advisor,
		preferredAlgorithms: preferredAlgorithms,
		genContext:          genContext,
		constraintsBase:     constraintsBase,
		expectedAssignments: expectedAssignments,
	}
}

// Start creates a fresh run and runs it to completion.
func (l *Loop) Start(ctx context.Context, scenario string, dateStart, dateEnd time.Time, maxIterations int, targetScore float64, stagnationLimit int, seed int64) (domain.RunState, error) {
	now := time.Now().UTC()
	runID, err := NewRunID(scenario, now)
	if err != nil {
		return domain.RunState{}, err
	}

	state := domain.RunState{
		RunID:           runID,
		Scenario:        scenario,
		DateStart:       dateStart,
		DateEnd:         dateEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
		MaxIterations:   maxIterations,
		Status:          domain.RunRunning,
		TargetScore:     targetScore,
		StagnationLimit: stagnationLimit,
		RNGSeed:         seed,
	}

	if err := l.store.CreateRun(state); err != nil {
		return state, err
	}
	return l.run(ctx, state)
}

// Resume loads an existing run and continues it. State is reconciled
// against history.ndjson first: a torn trailing line is repaired away,
// and if state.json disagrees with the repaired history's length the
// derived counters (current_iteration, best_score, best_iteration,
// iterations_since_improvement) are recomputed from history.
func (l *Loop) Resume(ctx context.Context, runID string) (domain.RunState, error) {
	state, found, err := l.store.LoadRun(runID)
	if err != nil {
		return domain.RunState{}, err
	}
	if !found {
		return domain.RunState{}, nil
	}

	if err := l.store.RepairHistory(runID); err != nil {
		return state, err
	}
	history, err := l.store.LoadHistory(runID)
	if err != nil {
		return state, err
	}
	if len(history) != state.CurrentIteration {
		state = RecomputeFromHistory(state, history)
	}

	if state.Status != domain.RunRunning {
		return state, nil
	}
	return l.run(ctx, state)
}

// RecomputeFromHistory rebuilds the derived counters of state from a
// repaired history, leaving configuration fields (target, stagnation
// limit, RNG seed, date range) untouched.
func RecomputeFromHistory(state domain.RunState, history []domain.IterationRecord) domain.RunState {
	state.CurrentIteration = len(history)
	state.BestScore = 0
	state.BestIteration = 0
	state.IterationsSinceImprovement = 0

	for _, record := range history {
		if record.Score > state.BestScore {
			state.BestScore = record.Score
			state.BestIteration = record.Iteration
			state.BestParams = record.Params
			state.IterationsSinceImprovement = 0
		} else {
			state.IterationsSinceImprovement++
		}
		state.CurrentParams = record.Params
	}
	return state
}

func (l *Loop) run(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	for state.Status == domain.RunRunning {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		params := SelectParams(state, l.preferredAlgorithms, l.advisor)
		state.CurrentIteration++
		state.CurrentParams = params
		state.UpdatedAt = time.Now().UTC()

		iterStart := time.Now()
		candidate := l.gen.GenerateSingle(l.genContext, params)

		var result domain.EvaluationResult
		notes := ""
		if candidate == nil {
			notes = "generator_null"
		} else {
			input := l.constraintsBase
			input.Assignments = candidate.Assignments
			report := constraints.Validate(input)
			result = evaluator.Evaluate(report, l.expectedAssignments, callCounts(candidate.Assignments))
		}

		record := domain.IterationRecord{
			Iteration:          state.CurrentIteration,
			Timestamp:          time.Now().UTC(),
			Params:             params,
			Score:              result.Score,
			Valid:              result.Valid,
			CriticalViolations: result.ViolationCounts[domain.SeverityCritical],
			TotalViolations:    totalViolations(result.ViolationCounts),
			ViolationTypes:     violationTypes(result.TopViolations),
			DurationMS:         time.Since(iterStart).Milliseconds(),
			Notes:              notes,
		}

		if result.Score > state.BestScore {
			state.BestScore = result.Score
			state.BestIteration = state.CurrentIteration
			state.BestParams = params
			state.IterationsSinceImprovement = 0

			if candidate != nil {
				if err := l.store.SaveSchedule(state.RunID, candidate.Assignments); err != nil {
					l.logError(state, "save schedule", err)
				}
				if err := l.store.SaveReport(state.RunID, result); err != nil {
					l.logError(state, "save report", err)
				}
			}
		} else {
			state.IterationsSinceImprovement++
		}

		if err := l.store.AppendIteration(state.RunID, record); err != nil {
			state.ConsecutiveErrors++
			l.logError(state, "append iteration", err)
			if state.ConsecutiveErrors >= maxConsecutiveErrors {
				state.Status = domain.RunFailed
				_ = l.store.SaveState(state)
				return state, nil
			}
		} else {
			state.ConsecutiveErrors = 0
		}

		if stop, reason := ShouldStop(state); stop {
			switch reason {
			case "target_reached":
				state.Status = domain.RunCompleted
			default:
				state.Status = domain.RunExhausted
			}
			if err := l.store.Log(state.RunID, "stopped: "+reason); err != nil {
				l.logError(state, "write run log", err)
			}
		}

		if err := l.store.SaveState(state); err != nil {
			l.logError(state, "save state", err)
		}
	}

	return state, nil
}

// ShouldStop implements P6: target_reached takes priority over every
// other stopping condition, regardless of iterations_since_improvement
// or current_iteration.
func ShouldStop(state domain.RunState) (bool, string) {
	if state.BestScore >= state.TargetScore {
		return true, "target_reached"
	}
	if state.CurrentIteration >= state.MaxIterations {
		return true, "max_iterations"
	}
	if state.IterationsSinceImprovement >= state.StagnationLimit {
		return true, "stagnation"
	}
	return false, ""
}

func (l *Loop) logError(state domain.RunState, operation string, err error) {
	if l.log == nil {
		return
	}
	l.log.WithFields(logging.NewFields().Component("control").Operation(operation).
		Custom("run_id", state.RunID).Error(err).ToLogrus()).Error("run-state store operation failed")
}

func totalViolations(counts map[domain.Severity]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func violationTypes(violations []domain.Violation) []string {
	seen := map[string]bool{}
	var types []string
	for _, v := range violations {
		if !seen[v.RuleType] {
			seen[v.RuleType] = true
			types = append(types, v.RuleType)
		}
	}
	sort.Strings(types)
	return types
}

func callCounts(assignments []domain.Assignment) map[string]int {
	counts := make(map[string]int)
	for _, a := range assignments {
		if a.Role == domain.RolePrimary {
			counts[a.PersonID]++
		}
	}
	return counts
}
