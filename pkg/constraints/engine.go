package constraints

import (
	"sort"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// Period bounds the window a Report was scored over.
type Period struct {
	Start time.Time
	End   time.Time
}

// Input is the full-period validation request: the assignment set plus
// every collaborator the validators need to resolve it.
type Input struct {
	Period       Period
	Assignments  []domain.Assignment
	Persons      map[string]domain.Person
	Blocks       map[string]domain.Block
	Templates    map[string]domain.RotationTemplate
	Absences     []domain.Absence
	Swaps        []domain.Swap
	Moonlighting domain.MoonlightingHours
	Now          time.Time
}

// Report is the Constraint Engine's output: violations and warnings over
// the scored period, with a validity flag and per-severity counts. The
// Evaluator turns a Report into a scored domain.EvaluationResult.
type Report struct {
	Violations      []domain.Violation
	Warnings        []Warning
	ViolationCounts map[domain.Severity]int
	Valid           bool
}

func groupAssignmentsByPerson(assignments []domain.Assignment) map[string][]domain.Assignment {
	byPerson := make(map[string][]domain.Assignment)
	for _, a := range assignments {
		byPerson[a.PersonID] = append(byPerson[a.PersonID], a)
	}
	return byPerson
}

func indexBlocks(blocks []domain.Block) map[string]domain.Block {
	index := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		index[b.ID] = b
	}
	return index
}

func blockList(index map[string]domain.Block) []domain.Block {
	list := make([]domain.Block, 0, len(index))
	for _, b := range index {
		list = append(list, b)
	}
	return list
}

func datesOf(assignments []domain.Assignment, blocks map[string]domain.Block) []time.Time {
	dates := make([]time.Time, 0, len(assignments))
	for _, a := range assignments {
		if b, ok := blocks[a.BlockID]; ok {
			dates = append(dates, b.Date)
		}
	}
	return dates
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 0
	case domain.SeverityHigh:
		return 1
	case domain.SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Validate runs every validator in declared order — duty-hour,
// supervision, leave, swap-state — and merges the result into a Report.
// Validators are stateless and the engine itself is safe to invoke
// concurrently across distinct candidates.
func Validate(in Input) Report {
	var violations []domain.Violation
	var warnings []Warning

	byPerson := groupAssignmentsByPerson(in.Assignments)

	// 1. Duty-hour validator, per resident.
	for personID, person := range in.Persons {
		if !person.IsResident() {
			continue
		}
		personAssignments := byPerson[personID]

		hoursByDate := HoursByDate(personAssignments, in.Blocks, in.Templates)
		moonlighting := in.Moonlighting[personID]

		v, w := ValidateRollingAverage(personID, hoursByDate, moonlighting)
		violations = append(violations, v...)
		warnings = append(warnings, w...)

		shifts := ShiftRecordsFor(personAssignments, in.Blocks, in.Templates)
		v, w = ValidateShiftLimits(personID, shifts)
		violations = append(violations, v...)
		warnings = append(warnings, w...)

		violations = append(violations, ValidateRestPeriod(personID, shifts)...)
		violations = append(violations, ValidateOneInSeven(personID, datesOf(personAssignments, in.Blocks))...)
		warnings = append(warnings, ValidateMoonlighting(personID, moonlighting)...)
	}

	// 2. Supervision validator, per block.
	violations = append(violations, ValidateSupervision(blockList(in.Blocks), in.Assignments, in.Persons)...)

	// 3. Leave validator.
	assignedDatesByPerson := make(map[string][]time.Time, len(byPerson))
	for personID, assignments := range byPerson {
		assignedDatesByPerson[personID] = datesOf(assignments, in.Blocks)
	}
	v, w := ValidateLeave(in.Absences, assignedDatesByPerson, in.Now)
	violations = append(violations, v...)
	warnings = append(warnings, w...)

	// 4. Swap validator (state consistency against invariant I7).
	violations = append(violations, ValidateSwapState(in.Swaps)...)

	sort.SliceStable(violations, func(i, j int) bool {
		return severityRank(violations[i].Severity) < severityRank(violations[j].Severity)
	})

	counts := make(map[domain.Severity]int, 4)
	for _, viol := range violations {
		counts[viol.Severity]++
	}

	return Report{
		Violations:      violations,
		Warnings:        warnings,
		ViolationCounts: counts,
		Valid:           counts[domain.SeverityCritical] == 0 && counts[domain.SeverityHigh] == 0,
	}
}
