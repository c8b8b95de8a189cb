package constraints

import (
	"fmt"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// Swap request bounds.
const (
	MaxSwapAdvanceDays       = 180
	MaxPendingSwapsPerPerson = 5
)

// SwapCreationInputs carries the collaborator lookups the pre-creation
// validator needs, gathered by the caller so the validator itself stays
// pure.
type SwapCreationInputs struct {
	Swap                  domain.Swap
	RequesterOwnsSource   bool
	PendingSwapsRequester int
	TargetExists          bool
	TargetAlreadyAssigned bool
}

// SwapValidationResult is the structured pass/fail/warn outcome of a swap
// request validation.
type SwapValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateSwapCreation runs the pre-creation checks: ownership, date
// bounds, pending-swap ceiling, and one-to-one target compatibility.
func ValidateSwapCreation(in SwapCreationInputs, now time.Time) SwapValidationResult {
	var errs, warns []string
	s := in.Swap

	if !in.RequesterOwnsSource {
		errs = append(errs, "requester does not own the source assignment")
	}

	if s.SourceWeek.Before(truncateToDay(now)) {
		errs = append(errs, fmt.Sprintf("cannot swap an assignment in the past (%s)", s.SourceWeek.Format("2006-01-02")))
	} else if truncateToDay(s.SourceWeek).Equal(truncateToDay(now)) {
		warns = append(warns, fmt.Sprintf("swapping assignment for today (%s) may be too late", s.SourceWeek.Format("2006-01-02")))
	}

	maxFuture := now.AddDate(0, 0, MaxSwapAdvanceDays)
	if s.SourceWeek.After(maxFuture) {
		errs = append(errs, fmt.Sprintf("cannot swap more than %d days ahead (assignment date: %s)", MaxSwapAdvanceDays, s.SourceWeek.Format("2006-01-02")))
	}

	if in.PendingSwapsRequester >= MaxPendingSwapsPerPerson {
		errs = append(errs, fmt.Sprintf("requester has too many pending swaps (%d); maximum %d", in.PendingSwapsRequester, MaxPendingSwapsPerPerson))
	}

	if s.Kind == domain.SwapOneToOne {
		if s.TargetPersonID == "" {
			errs = append(errs, "target person required for one-to-one swap")
		} else if !in.TargetExists {
			errs = append(errs, fmt.Sprintf("target person not found: %s", s.TargetPersonID))
		} else if in.TargetAlreadyAssigned {
			warns = append(warns, "target already has an assignment on the requester's block; this swap would create a conflict")
		}
	}

	return SwapValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ValidatePostSwapCompliance re-runs duty-hour and supervision checks
// against the assignment set as it would exist after the swap executes,
// returning any new violations the swap would introduce.
func ValidatePostSwapCompliance(blocks []domain.Block, postSwapAssignments []domain.Assignment, persons map[string]domain.Person, templates map[string]domain.RotationTemplate, moonlighting domain.MoonlightingHours) []domain.Violation {
	var violations []domain.Violation

	violations = append(violations, ValidateSupervision(blocks, postSwapAssignments, persons)...)

	byPerson := groupAssignmentsByPerson(postSwapAssignments)
	blockIndex := indexBlocks(blocks)
	for personID, person := range persons {
		if !person.IsResident() {
			continue
		}
		personAssignments := byPerson[personID]
		hoursByDate := HoursByDate(personAssignments, blockIndex, templates)
		v, _ := ValidateRollingAverage(personID, hoursByDate, moonlighting[personID])
		violations = append(violations, v...)
	}

	return violations
}

// ValidateSwapRollbackEligibility implements invariant I7: rollback is
// allowed iff status is executed and now is within 24 hours of execution.
func ValidateSwapRollbackEligibility(s domain.Swap, now time.Time) (eligible bool, reason string, hoursRemaining float64) {
	if s.Status != domain.SwapExecuted {
		return false, fmt.Sprintf("swap status is %q, must be executed to roll back", s.Status), 0
	}
	if s.ExecutedAt == nil {
		return false, "swap has no execution timestamp", 0
	}

	elapsed := now.Sub(*s.ExecutedAt)
	if elapsed >= domain.RollbackWindow {
		return false, "rollback window expired", 0
	}

	remaining := (domain.RollbackWindow - elapsed).Hours()
	return true, "", remaining
}

// ValidateSwapState flags swaps whose stored fields are inconsistent with
// invariant I7 (rollback_deadline = executed_at + 24h).
func ValidateSwapState(swaps []domain.Swap) []domain.Violation {
	var violations []domain.Violation

	for _, s := range swaps {
		if s.Status != domain.SwapExecuted {
			continue
		}
		if s.ExecutedAt == nil {
			violations = append(violations, domain.Violation{
				RuleType: "swap_state",
				Severity: domain.SeverityMedium,
				PersonID: s.SourcePersonID,
				Message:  fmt.Sprintf("swap %s marked executed without an execution timestamp", s.ID),
			})
			continue
		}
		expectedDeadline := s.ExecutedAt.Add(domain.RollbackWindow)
		if s.RollbackDeadline == nil || !s.RollbackDeadline.Equal(expectedDeadline) {
			violations = append(violations, domain.Violation{
				RuleType:  "swap_state",
				Severity:  domain.SeverityLow,
				PersonID:  s.SourcePersonID,
				DateStart: *s.ExecutedAt,
				Message:   fmt.Sprintf("swap %s rollback deadline does not match executed_at + 24h", s.ID),
			})
		}
	}

	return violations
}
