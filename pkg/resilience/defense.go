package resilience

// DefenseLevel is the ordered defense-in-depth ladder, per spec.md §4.5.
type DefenseLevel string

const (
	Prevention    DefenseLevel = "prevention"
	Control       DefenseLevel = "control"
	SafetySystems DefenseLevel = "safety_systems"
	Containment   DefenseLevel = "containment"
	Emergency     DefenseLevel = "emergency"
)

var defenseOrder = []DefenseLevel{Prevention, Control, SafetySystems, Containment, Emergency}

func defenseRank(level DefenseLevel) int {
	for i, l := range defenseOrder {
		if l == level {
			return i
		}
	}
	return 0
}

// DefenseAssessment reports the run's current and recommended defense
// level and whether escalation is needed.
type DefenseAssessment struct {
	CurrentLevel     DefenseLevel
	RecommendedLevel DefenseLevel
	EscalationNeeded bool
}

// AssessDefenseLevel recommends a defense level from the worse of the
// current utilization band and the active critical-violation count, and
// reports whether the recommendation escalates past currentLevel.
func AssessDefenseLevel(currentLevel DefenseLevel, utilization UtilizationLevel, criticalViolations int) DefenseAssessment {
	recommended := recommendedDefenseLevel(utilization, criticalViolations)
	return DefenseAssessment{
		CurrentLevel:     currentLevel,
		RecommendedLevel: recommended,
		EscalationNeeded: defenseRank(recommended) > defenseRank(currentLevel),
	}
}

func recommendedDefenseLevel(utilization UtilizationLevel, criticalViolations int) DefenseLevel {
	byUtilization := Prevention
	switch utilization {
	case UtilizationBlack:
		byUtilization = Emergency
	case UtilizationRed:
		byUtilization = Containment
	case UtilizationOrange:
		byUtilization = SafetySystems
	case UtilizationYellow:
		byUtilization = Control
	}

	byViolations := Prevention
	switch {
	case criticalViolations >= 10:
		byViolations = Emergency
	case criticalViolations >= 5:
		byViolations = Containment
	case criticalViolations >= 2:
		byViolations = SafetySystems
	case criticalViolations >= 1:
		byViolations = Control
	}

	if defenseRank(byViolations) > defenseRank(byUtilization) {
		return byViolations
	}
	return byUtilization
}
