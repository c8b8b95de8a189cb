// Package constraints is the Constraint Engine: a composable pipeline of
// pure validators over an assignment set. Each validator is stateless and
// returns zero or more domain.Violation values; Validate runs them in a
// fixed order and merges the results.
package constraints

import (
	"fmt"
	"sort"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// ACGME work-hour constants.
const (
	MaxWeeklyHours            = 80.0
	RollingDays               = 28
	RollingWeeks              = 4.0
	MaxConsecutiveHours       = 24.0
	MaxTotalShiftHours        = 28.0 // 24+4 rule
	ExtendedShiftWarningHours = 26.0
	MinRestHours              = 10.0
	MoonlightingWeeklyWarning = 20.0
)

// Warning is an advisory finding: approaching a limit, not yet a violation.
type Warning struct {
	PersonID string
	Kind     string
	Message  string
}

// severityForPercentage implements the 80-hour violation severity ladder.
func severityForPercentage(pct float64) domain.Severity {
	switch {
	case pct >= 10:
		return domain.SeverityCritical
	case pct >= 5:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// WarningLevel returns the notification band ("yellow"/"orange"/"red") for
// a projected weekly-hours figure, or "" when under the yellow threshold.
func WarningLevel(hours float64) string {
	switch {
	case hours >= MaxWeeklyHours:
		return "red"
	case hours >= MaxWeeklyHours*0.975: // 78h
		return "orange"
	case hours >= MaxWeeklyHours*0.9375: // 75h
		return "yellow"
	default:
		return ""
	}
}

// HoursByDate converts block-based assignments into per-date duty hours,
// using the intensity of each assignment's rotation template (standard or
// intensive; standard is assumed when the template is unknown).
func HoursByDate(assignments []domain.Assignment, blocks map[string]domain.Block, templates map[string]domain.RotationTemplate) map[string]float64 {
	hours := make(map[string]float64)
	for _, a := range assignments {
		block, ok := blocks[a.BlockID]
		if !ok {
			continue
		}
		h := domain.HoursStandard
		if tmpl, ok := templates[a.RotationTemplateID]; ok {
			h = tmpl.Hours()
		}
		hours[block.Date.Format("2006-01-02")] += h
	}
	return hours
}

// ValidateRollingAverage checks the 80-hour rolling 28-day average across
// every window that starts at a date with recorded hours and ends on or
// before the last recorded date, after folding in externally supplied
// moonlighting hours. Anchors with fewer than 28 days of data after them
// are not checked.
func ValidateRollingAverage(personID string, hoursByDate, moonlighting map[string]float64) ([]domain.Violation, []Warning) {
	var violations []domain.Violation
	var warnings []Warning

	if len(hoursByDate) == 0 {
		return violations, warnings
	}

	total := make(map[string]float64, len(hoursByDate))
	for d, h := range hoursByDate {
		total[d] = h
	}
	for d, h := range moonlighting {
		total[d] += h
	}

	dates := make([]time.Time, 0, len(total))
	for d := range total {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	lastDate := dates[len(dates)-1]

	for _, start := range dates {
		end := start.AddDate(0, 0, RollingDays-1)
		if end.After(lastDate) {
			// Fewer than 28 days of data are available past this anchor;
			// a partial window would underreport or double-count hours
			// that simply haven't been recorded yet.
			continue
		}
		var windowHours float64
		for d, h := range total {
			dt, err := time.Parse("2006-01-02", d)
			if err != nil {
				continue
			}
			if !dt.Before(start) && !dt.After(end) {
				windowHours += h
			}
		}
		avgWeekly := windowHours / RollingWeeks

		if avgWeekly > MaxWeeklyHours {
			pct := (avgWeekly - MaxWeeklyHours) / MaxWeeklyHours * 100
			violations = append(violations, domain.Violation{
				RuleType:  "80_hour",
				Severity:  severityForPercentage(pct),
				PersonID:  personID,
				DateStart: start,
				DateEnd:   end,
				Message: fmt.Sprintf("80-hour rule violation: %.1fh/week avg over %s to %s (limit: %.0fh)",
					avgWeekly, start.Format("2006-01-02"), end.Format("2006-01-02"), MaxWeeklyHours),
				PercentageOverLimit: pct,
			})
			continue
		}
		if level := WarningLevel(avgWeekly); level != "" {
			warnings = append(warnings, Warning{
				PersonID: personID,
				Kind:     "approaching_limit",
				Message:  fmt.Sprintf("%s warning: %.1fh/week avg starting %s", level, avgWeekly, start.Format("2006-01-02")),
			})
		}
	}

	return violations, warnings
}

// ShiftRecord is one continuous duty period, derived from a block
// assignment's session and rotation intensity. The scheduler's block-based
// model (AM/PM sessions) has no minute-level precision, so start/end are
// approximations anchored at session boundaries.
type ShiftRecord struct {
	Start time.Time
	End   time.Time
}

// Hours returns the shift's duration.
func (s ShiftRecord) Hours() float64 {
	return s.End.Sub(s.Start).Hours()
}

// sessionStartOffset anchors an AM session at midnight and a PM session at
// noon, within the block-based model's resolution.
func sessionStartOffset(session domain.Session) int {
	if session == domain.SessionPM {
		return 12
	}
	return 0
}

// ShiftRecordsFor builds ShiftRecords for a person's assignments.
func ShiftRecordsFor(assignments []domain.Assignment, blocks map[string]domain.Block, templates map[string]domain.RotationTemplate) []ShiftRecord {
	shifts := make([]ShiftRecord, 0, len(assignments))
	for _, a := range assignments {
		block, ok := blocks[a.BlockID]
		if !ok {
			continue
		}
		h := domain.HoursStandard
		if tmpl, ok := templates[a.RotationTemplateID]; ok {
			h = tmpl.Hours()
		}
		offset := sessionStartOffset(block.Session)
		start := time.Date(block.Date.Year(), block.Date.Month(), block.Date.Day(), offset, 0, 0, 0, block.Date.Location())
		shifts = append(shifts, ShiftRecord{Start: start, End: start.Add(time.Duration(h * float64(time.Hour)))})
	}
	return shifts
}

// ValidateShiftLimits enforces the 24+4 rule: shifts over 28 hours are
// CRITICAL violations, 26-28 hour shifts are warnings.
func ValidateShiftLimits(personID string, shifts []ShiftRecord) ([]domain.Violation, []Warning) {
	var violations []domain.Violation
	var warnings []Warning

	for _, s := range shifts {
		duration := s.Hours()
		if duration <= MaxConsecutiveHours {
			continue
		}
		if duration <= MaxTotalShiftHours {
			if duration > ExtendedShiftWarningHours {
				warnings = append(warnings, Warning{
					PersonID: personID,
					Kind:     "extended_shift",
					Message:  fmt.Sprintf("extended shift on %s: %.1fh (24+4 limit: %.0fh)", s.Start.Format("2006-01-02"), duration, MaxTotalShiftHours),
				})
			}
			continue
		}
		violations = append(violations, domain.Violation{
			RuleType:            "24_plus_4",
			Severity:            domain.SeverityCritical,
			PersonID:            personID,
			DateStart:           s.Start,
			DateEnd:             s.End,
			Message:             fmt.Sprintf("24+4 rule violation on %s: %.1fh (limit: %.0fh)", s.Start.Format("2006-01-02"), duration, MaxTotalShiftHours),
			PercentageOverLimit: (duration - MaxTotalShiftHours) / MaxTotalShiftHours * 100,
		})
	}

	return violations, warnings
}

// ValidateRestPeriod enforces the 10-hour minimum rest period after any
// shift of 24 or more hours.
func ValidateRestPeriod(personID string, shifts []ShiftRecord) []domain.Violation {
	if len(shifts) < 2 {
		return nil
	}
	sorted := make([]ShiftRecord, len(shifts))
	copy(sorted, shifts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].End.Before(sorted[j].End) })

	var violations []domain.Violation
	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.Hours() < MaxConsecutiveHours {
			continue
		}
		rest := next.Start.Sub(cur.End).Hours()
		if rest < MinRestHours {
			violations = append(violations, domain.Violation{
				RuleType:  "rest_period",
				Severity:  domain.SeverityHigh,
				PersonID:  personID,
				DateStart: cur.End,
				DateEnd:   next.Start,
				Message:   fmt.Sprintf("insufficient rest period: %.1fh (minimum %.0fh required)", rest, MinRestHours),
			})
		}
	}
	return violations
}

// ValidateOneInSeven enforces at least one 24-hour off-period in every
// rolling 7-day window: any 7 consecutive days all carrying an assignment
// is a violation.
func ValidateOneInSeven(personID string, workedDates []time.Time) []domain.Violation {
	if len(workedDates) == 0 {
		return nil
	}

	worked := make(map[string]bool, len(workedDates))
	minD, maxD := workedDates[0], workedDates[0]
	for _, d := range workedDates {
		worked[d.Format("2006-01-02")] = true
		if d.Before(minD) {
			minD = d
		}
		if d.After(maxD) {
			maxD = d
		}
	}

	var violations []domain.Violation
	for start := minD; !start.After(maxD.AddDate(0, 0, -6)); start = start.AddDate(0, 0, 1) {
		allWorked := true
		for i := 0; i < 7; i++ {
			if !worked[start.AddDate(0, 0, i).Format("2006-01-02")] {
				allWorked = false
				break
			}
		}
		if allWorked {
			end := start.AddDate(0, 0, 6)
			violations = append(violations, domain.Violation{
				RuleType:  "one_in_seven",
				Severity:  domain.SeverityHigh,
				PersonID:  personID,
				DateStart: start,
				DateEnd:   end,
				Message:   fmt.Sprintf("no day off in 7 consecutive days starting %s", start.Format("2006-01-02")),
			})
		}
	}
	return violations
}

// mondayOf returns the Monday that begins t's calendar week.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// ValidateMoonlighting warns when a person's externally supplied
// moonlighting hours exceed the weekly watch threshold.
func ValidateMoonlighting(personID string, moonlighting map[string]float64) []Warning {
	if len(moonlighting) == 0 {
		return nil
	}
	weekly := make(map[string]float64)
	for d, h := range moonlighting {
		dt, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		weekly[mondayOf(dt).Format("2006-01-02")] += h
	}

	var warnings []Warning
	for week, h := range weekly {
		if h > MoonlightingWeeklyWarning {
			warnings = append(warnings, Warning{
				PersonID: personID,
				Kind:     "moonlighting",
				Message:  fmt.Sprintf("high moonlighting hours week of %s: %.1fh (watch for 80-hour limit)", week, h),
			})
		}
	}
	return warnings
}
