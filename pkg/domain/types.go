// Package domain holds the scheduling core's entity types: the arena of
// Persons, Blocks, RotationTemplates, Assignments, Absences, and Swaps
// that every other package operates on, plus the run-level types
// (Candidate, EvaluationResult, RunState, IterationRecord) that the
// control loop threads through an iteration.
package domain

import "time"

// PersonKind distinguishes a resident from supervising faculty.
type PersonKind string

const (
	PersonKindResident PersonKind = "resident"
	PersonKindFaculty  PersonKind = "faculty"
)

// TrainingYear is a resident's post-graduate year. Zero for faculty.
type TrainingYear int

const (
	TrainingYearNone TrainingYear = 0
	PGY1             TrainingYear = 1
	PGY2             TrainingYear = 2
	PGY3             TrainingYear = 3
)

// Person is immutable for the lifetime of a run.
type Person struct {
	ID           string
	Name         string
	Kind         PersonKind
	TrainingYear TrainingYear
	RoleTags     []string
	Procedures   bool // capability flag: performs-procedures
}

// IsResident reports whether the person is a resident (as opposed to
// faculty).
func (p Person) IsResident() bool {
	return p.Kind == PersonKindResident
}

// Session is the half of a calendar day a Block covers.
type Session string

const (
	SessionAM Session = "AM"
	SessionPM Session = "PM"
)

// Block is the atomic unit of assignment: one session on one date.
type Block struct {
	ID          string
	Date        time.Time
	Session     Session
	BlockNumber int
	Weekend     bool
	Holiday     bool
}

// RotationType classifies a RotationTemplate's nature.
type RotationType string

const (
	RotationClinic    RotationType = "clinic"
	RotationInpatient RotationType = "inpatient"
	RotationElective  RotationType = "elective"
	RotationCall      RotationType = "call"
)

// Intensity hours per the duty-hour validator's block-to-hours mapping.
const (
	HoursStandard  = 6.0
	HoursIntensive = 12.0
)

// RotationTemplate is a named service with supervision and capacity
// attributes. Versioned with soft archive: archived templates are kept
// for historical Assignment references but excluded from new generation.
type RotationTemplate struct {
	ID                  string
	Name                string
	Type                RotationType
	SupervisionRequired bool
	MaxResidents        int
	Intensive           bool // true => HoursIntensive, false => HoursStandard
	Version             int
	Archived            bool
}

// Hours returns the duty-hour contribution of one Block assigned to this
// template.
func (t RotationTemplate) Hours() float64 {
	if t.Intensive {
		return HoursIntensive
	}
	return HoursStandard
}

// AssignmentRole distinguishes the responsibility a Person holds for a
// Block.
type AssignmentRole string

const (
	RolePrimary     AssignmentRole = "primary"
	RoleBackup      AssignmentRole = "backup"
	RoleSupervising AssignmentRole = "supervising"
)

// Assignment binds a Person to a Block, optionally under a
// RotationTemplate. At most one primary Assignment may exist per
// (Block, Person) pair — see Candidate invariant P1.
type Assignment struct {
	BlockID            string         `json:"block_id"`
	PersonID           string         `json:"person_id"`
	RotationTemplateID string         `json:"rotation_template_id,omitempty"`
	Role               AssignmentRole `json:"role"`
}

// AbsenceKind enumerates the reasons a Person may be unavailable.
type AbsenceKind string

const (
	AbsenceDeployment   AbsenceKind = "deployment"
	AbsenceTDY          AbsenceKind = "tdy"
	AbsenceVacation     AbsenceKind = "vacation"
	AbsenceSick         AbsenceKind = "sick"
	AbsenceMedical      AbsenceKind = "medical"
	AbsenceBereavement  AbsenceKind = "bereavement"
	AbsenceMaternity    AbsenceKind = "maternity"
	AbsenceConvalescent AbsenceKind = "convalescent"
	AbsenceConference   AbsenceKind = "conference"
	AbsenceEmergency    AbsenceKind = "emergency"
)

// Absence is a date-range during which a Person may be unavailable for
// assignment. Whether it actually blocks assignment is derived by the
// leave validator (see pkg/constraints), except when BlockingOverride is
// explicitly set.
type Absence struct {
	ID               string
	PersonID         string
	Start            time.Time
	End              time.Time
	Kind             AbsenceKind
	BlockingOverride *bool // nil => derive; non-nil => explicit override
	TentativeReturn  bool
}

// SwapKind enumerates the shapes a Swap request may take.
type SwapKind string

const (
	SwapOneToOne SwapKind = "one_to_one"
	SwapAbsorb   SwapKind = "absorb"
	SwapMultiWay SwapKind = "multi_way"
)

// SwapStatus is the swap lifecycle state.
type SwapStatus string

const (
	SwapPending    SwapStatus = "pending"
	SwapApproved   SwapStatus = "approved"
	SwapExecuted   SwapStatus = "executed"
	SwapRejected   SwapStatus = "rejected"
	SwapCancelled  SwapStatus = "cancelled"
	SwapRolledBack SwapStatus = "rolled_back"
)

// RollbackWindow is the fixed duration (invariant I7) after execution
// during which a Swap may be rolled back.
const RollbackWindow = 24 * time.Hour

// Swap is a request to exchange or absorb assignments between people.
type Swap struct {
	ID               string
	SourcePersonID   string
	SourceWeek       time.Time
	TargetPersonID   string // empty for absorb
	TargetWeek       time.Time
	Kind             SwapKind
	Status           SwapStatus
	CreatedAt        time.Time
	ApprovedAt       *time.Time
	ExecutedAt       *time.Time
	RollbackDeadline *time.Time
	RolledBackAt     *time.Time
}

// IsRollbackEligible reports whether the swap can still be rolled back at
// instant now, per invariant I7.
func (s Swap) IsRollbackEligible(now time.Time) bool {
	if s.Status != SwapExecuted || s.ExecutedAt == nil {
		return false
	}
	deadline := s.ExecutedAt.Add(RollbackWindow)
	return now.Before(deadline)
}

// Algorithm is the closed set of candidate-generation strategies. A
// generated candidate always names exactly one.
type Algorithm string

const (
	AlgorithmGreedy                Algorithm = "greedy"
	AlgorithmConstraintProgramming Algorithm = "cp_sat"
	AlgorithmMILP                  Algorithm = "pulp"
	AlgorithmHybrid                Algorithm = "hybrid"
)

// GeneratorParams parametrizes one generator invocation.
type GeneratorParams struct {
	Algorithm             Algorithm          `json:"algorithm"`
	TimeoutSeconds        float64            `json:"timeout_seconds"`
	Seed                  int64              `json:"random_seed"`
	MaxRestarts           int                `json:"max_restarts"`
	NeighborhoodSize      int                `json:"neighborhood_size"`
	DiversificationFactor float64            `json:"diversification_factor"`
	ConstraintWeights     map[string]float64 `json:"constraint_weights,omitempty"`
}

// DefaultGeneratorParams returns the baseline GeneratorParams for a run's first
// iteration: the head of the configured algorithm preference list and a
// conservative default timeout.
func DefaultGeneratorParams(preferredAlgorithms []Algorithm, seed int64) GeneratorParams {
	algo := AlgorithmGreedy
	if len(preferredAlgorithms) > 0 {
		algo = preferredAlgorithms[0]
	}
	return GeneratorParams{
		Algorithm:             algo,
		TimeoutSeconds:        60,
		Seed:                  seed,
		MaxRestarts:           3,
		NeighborhoodSize:      5,
		DiversificationFactor: 0.2,
	}
}

// SolverStats carries solver-reported diagnostics for a Candidate.
type SolverStats struct {
	NodesExplored int64   `json:"nodes_explored"`
	RuntimeMS     int64   `json:"runtime_ms"`
	Gap           float64 `json:"gap"`
}

// Candidate is the ordered set of Assignments produced by one generator
// invocation.
type Candidate struct {
	Assignments []Assignment    `json:"assignments"`
	Algorithm   Algorithm       `json:"algorithm"`
	Params      GeneratorParams `json:"params"`
	Stats       SolverStats     `json:"solver_stats"`
	RuntimeMS   int64           `json:"runtime_ms"`
	Feasible    bool            `json:"feasible"` // "construction completed", not "constraint-clean"
	Objective   float64         `json:"objective_value,omitempty"`
}

// Severity is the ordered violation-severity scale used throughout the
// constraint engine and evaluator.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// SeverityWeight returns the weighted-deficit weight for a severity, per
// the evaluator's scoring formula.
func SeverityWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.5
	case SeverityMedium:
		return 0.2
	case SeverityLow:
		return 0.05
	default:
		return 0
	}
}

// Violation is one constraint-engine finding.
type Violation struct {
	RuleType            string    `json:"rule_type"`
	Severity            Severity  `json:"severity"`
	PersonID            string    `json:"person_id"`
	DateStart           time.Time `json:"date_start"`
	DateEnd             time.Time `json:"date_end"`
	Message             string    `json:"message"`
	PercentageOverLimit float64   `json:"violation_percentage"` // 0 when not applicable
}

// WorkloadMetrics summarizes equity across persons in a scored period.
type WorkloadMetrics struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	CallCountGap           int     `json:"call_count_gap"`
}

// EvaluationResult is the scored outcome of validating a Candidate (or an
// arbitrary Assignment set) against the Constraint Engine.
type EvaluationResult struct {
	Score           float64          `json:"score"`
	Valid           bool             `json:"valid"`
	ViolationCounts map[Severity]int `json:"violation_counts"`
	TopViolations   []Violation      `json:"top_violations"` // at most ten, most-severe first
	Warnings        []string         `json:"warnings"`
	Metrics         WorkloadMetrics  `json:"metrics"`
}

// RunStatus is the control loop's state-machine position.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunExhausted RunStatus = "exhausted"
)

// RunState is the crash-resumable record of one autonomous run.
type RunState struct {
	RunID                      string          `json:"run_id"`
	Scenario                   string          `json:"scenario"`
	DateStart                  time.Time       `json:"date_start"`
	DateEnd                    time.Time       `json:"date_end"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
	CurrentIteration           int             `json:"current_iteration"`
	MaxIterations              int             `json:"max_iterations"`
	Status                     RunStatus       `json:"status"`
	BestScore                  float64         `json:"best_score"`
	BestIteration              int             `json:"best_iteration"`
	BestParams                 GeneratorParams `json:"best_params"`
	TargetScore                float64         `json:"target_score"`
	StagnationLimit            int             `json:"stagnation_limit"`
	IterationsSinceImprovement int             `json:"iterations_since_improvement"`
	RNGSeed                    int64           `json:"rng_seed"`
	CurrentParams              GeneratorParams `json:"current_params"`
	ConsecutiveErrors          int             `json:"consecutive_errors"`
}

// IterationRecord is one append-only line of run history.
type IterationRecord struct {
	Iteration          int             `json:"iteration"`
	Timestamp          time.Time       `json:"timestamp"`
	Params             GeneratorParams `json:"params"`
	Score              float64         `json:"score"`
	Valid              bool            `json:"valid"`
	CriticalViolations int             `json:"critical_violations"`
	TotalViolations    int             `json:"total_violations"`
	ViolationTypes     []string        `json:"violation_types"`
	DurationMS         int64           `json:"duration_ms"`
	Notes              string          `json:"notes,omitempty"`
}

// FallbackScenario is the closed set of crisis tags a precomputed
// FallbackSchedule may be keyed by.
type FallbackScenario string

const (
	FallbackSingleLoss        FallbackScenario = "single_loss"
	FallbackDoubleLoss        FallbackScenario = "double_loss"
	FallbackPCSSeason50       FallbackScenario = "pcs_season_50"
	FallbackHolidaySkeleton   FallbackScenario = "holiday_skeleton"
	FallbackPandemicEssential FallbackScenario = "pandemic_essential"
	FallbackMassCasualty      FallbackScenario = "mass_casualty"
	FallbackWeatherEmergency  FallbackScenario = "weather_emergency"
)

// FallbackSchedule is a precomputed schedule ready for O(1) activation.
type FallbackSchedule struct {
	Scenario        FallbackScenario `json:"scenario"`
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      time.Time        `json:"valid_until"`
	Assignments     []Assignment     `json:"assignments"`
	Assumptions     []string         `json:"assumptions,omitempty"`
	ServicesReduced []string         `json:"services_reduced,omitempty"`
	CoverageRate    float64          `json:"coverage_rate"`
	IsActive        bool             `json:"is_active"`
	ActivationCount int              `json:"activation_count"`
	LastActivated   *time.Time       `json:"last_activated,omitempty"`
}

// Zone is a blast-radius partition used by contingency analysis.
type Zone struct {
	Name             string
	Services         []string
	DedicatedPersons []string
	BackupPersons    []string
	MinCoverage      int
}

// IsSelfSufficient reports whether the zone's dedicated staffing alone
// satisfies its minimum coverage requirement, with no backup draw.
func (z Zone) IsSelfSufficient() bool {
	return len(z.DedicatedPersons) >= z.MinCoverage
}
