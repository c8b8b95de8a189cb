package constraints

import (
	"fmt"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// Recovery windows after specific absence kinds end.
const (
	PostDeploymentRecoveryDays   = 7
	PostConvalescentRecoveryDays = 3
)

var alwaysBlockingKinds = map[domain.AbsenceKind]bool{
	domain.AbsenceDeployment:   true,
	domain.AbsenceTDY:          true,
	domain.AbsenceBereavement:  true,
	domain.AbsenceMaternity:    true,
	domain.AbsenceConvalescent: true,
	domain.AbsenceEmergency:    true,
}

var nonBlockingKinds = map[domain.AbsenceKind]bool{
	domain.AbsenceVacation:   true,
	domain.AbsenceConference: true,
}

// conditionalBlockingThresholdDays maps a duration-conditional kind to the
// day count past which it blocks assignment.
var conditionalBlockingThresholdDays = map[domain.AbsenceKind]int{
	domain.AbsenceSick:    3,
	domain.AbsenceMedical: 7,
}

// ShouldBlockAssignment derives whether an absence blocks assignment: an
// explicit override takes precedence, then always-blocking kinds, then
// duration-conditional kinds, then non-blocking kinds; unknown kinds block
// by conservative default.
func ShouldBlockAssignment(a domain.Absence) bool {
	if a.BlockingOverride != nil {
		return *a.BlockingOverride
	}
	if alwaysBlockingKinds[a.Kind] {
		return true
	}
	if threshold, ok := conditionalBlockingThresholdDays[a.Kind]; ok {
		days := int(a.End.Sub(a.Start).Hours()/24) + 1
		return days > threshold
	}
	if nonBlockingKinds[a.Kind] {
		return false
	}
	return true
}

// ValidateNoAssignmentDuringBlock returns one CRITICAL violation per date
// the person was assigned within a blocking absence's range.
func ValidateNoAssignmentDuringBlock(personID string, absence domain.Absence, assignedDates []time.Time) []domain.Violation {
	if !ShouldBlockAssignment(absence) {
		return nil
	}

	var violations []domain.Violation
	for _, d := range assignedDates {
		if d.Before(absence.Start) || d.After(absence.End) {
			continue
		}
		violations = append(violations, domain.Violation{
			RuleType:  "assignment_during_block",
			Severity:  domain.SeverityCritical,
			PersonID:  personID,
			DateStart: d,
			DateEnd:   d,
			Message:   fmt.Sprintf("assigned during blocking %s absence on %s", absence.Kind, d.Format("2006-01-02")),
		})
	}
	return violations
}

// validateRecoveryWindow flags assignments falling inside the recovery
// period after a blocking absence of the given kind ends.
func validateRecoveryWindow(personID string, leaveEnd time.Time, recoveryDays int, assignmentsAfterReturn []time.Time, label string) *domain.Violation {
	recoveryEnd := leaveEnd.AddDate(0, 0, recoveryDays)

	var early []time.Time
	for _, d := range assignmentsAfterReturn {
		if d.After(leaveEnd) && d.Before(recoveryEnd) {
			early = append(early, d)
		}
	}
	if len(early) == 0 {
		return nil
	}

	return &domain.Violation{
		RuleType:  "assignment_during_block",
		Severity:  domain.SeverityHigh,
		PersonID:  personID,
		DateStart: early[0],
		DateEnd:   early[len(early)-1],
		Message: fmt.Sprintf("insufficient %s recovery period: %d assignments before recovery end %s",
			label, len(early), recoveryEnd.Format("2006-01-02")),
	}
}

// ValidatePostDeploymentRecovery enforces the 7-day no-assignment window
// after a deployment ends.
func ValidatePostDeploymentRecovery(personID string, deploymentEnd time.Time, assignmentsAfterReturn []time.Time) *domain.Violation {
	return validateRecoveryWindow(personID, deploymentEnd, PostDeploymentRecoveryDays, assignmentsAfterReturn, "post-deployment")
}

// ValidatePostConvalescentRecovery enforces the 3-day no-assignment window
// after convalescent leave ends.
func ValidatePostConvalescentRecovery(personID string, leaveEnd time.Time, assignmentsAfterReturn []time.Time) *domain.Violation {
	return validateRecoveryWindow(personID, leaveEnd, PostConvalescentRecoveryDays, assignmentsAfterReturn, "post-convalescent")
}

// ValidateTentativeReturn emits a warning, never a violation, when a
// tentative return date falls within 7 days of now.
func ValidateTentativeReturn(personID string, absence domain.Absence, now time.Time) *Warning {
	if !absence.TentativeReturn {
		return nil
	}
	daysUntil := int(absence.End.Sub(now).Hours() / 24)
	if daysUntil > 7 {
		return nil
	}
	if daysUntil < 0 {
		daysUntil = 0
	}
	return &Warning{
		PersonID: personID,
		Kind:     "approaching_end",
		Message:  fmt.Sprintf("tentative return date %s approaching in %d day(s); confirm with resident", absence.End.Format("2006-01-02"), daysUntil),
	}
}

// ValidateLeave runs the blocking check, recovery-window checks, and
// tentative-return warning for every absence against the person's assigned
// dates.
func ValidateLeave(absences []domain.Absence, assignedDatesByPerson map[string][]time.Time, now time.Time) ([]domain.Violation, []Warning) {
	var violations []domain.Violation
	var warnings []Warning

	for _, absence := range absences {
		dates := assignedDatesByPerson[absence.PersonID]

		violations = append(violations, ValidateNoAssignmentDuringBlock(absence.PersonID, absence, dates)...)

		switch absence.Kind {
		case domain.AbsenceDeployment:
			if v := ValidatePostDeploymentRecovery(absence.PersonID, absence.End, dates); v != nil {
				violations = append(violations, *v)
			}
		case domain.AbsenceConvalescent:
			if v := ValidatePostConvalescentRecovery(absence.PersonID, absence.End, dates); v != nil {
				violations = append(violations, *v)
			}
		}

		if w := ValidateTentativeReturn(absence.PersonID, absence, now); w != nil {
			warnings = append(warnings, *w)
		}
	}

	return violations, warnings
}
