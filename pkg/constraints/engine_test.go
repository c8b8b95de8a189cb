package constraints_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

var _ = Describe("Validate", func() {
	It("satisfies P2: valid iff no CRITICAL and no HIGH violations", func() {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		block := domain.Block{ID: "b1", Date: start, Session: domain.SessionAM}
		template := domain.RotationTemplate{ID: "t1", Intensive: false}
		persons := map[string]domain.Person{
			"r1": {ID: "r1", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
			"f1": {ID: "f1", Kind: domain.PersonKindFaculty},
		}

		clean := constraints.Validate(constraints.Input{
			Assignments: []domain.Assignment{
				{BlockID: "b1", PersonID: "r1", RotationTemplateID: "t1", Role: domain.RolePrimary},
				{BlockID: "b1", PersonID: "f1", RotationTemplateID: "t1", Role: domain.RoleSupervising},
			},
			Persons:   persons,
			Blocks:    map[string]domain.Block{"b1": block},
			Templates: map[string]domain.RotationTemplate{"t1": template},
			Now:       start,
		})
		Expect(clean.Valid).To(BeTrue())
		Expect(clean.ViolationCounts[domain.SeverityCritical]).To(Equal(0))
		Expect(clean.ViolationCounts[domain.SeverityHigh]).To(Equal(0))

		// S4 shape: a blocking absence with conflicting assignments yields
		// CRITICAL violations and must report invalid.
		absentPerson := map[string]domain.Person{
			"r2": {ID: "r2", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
		}
		absence := domain.Absence{
			ID:       "abs-1",
			PersonID: "r2",
			Kind:     domain.AbsenceDeployment,
			Start:    start,
			End:      start.AddDate(0, 0, 10),
		}
		dirty := constraints.Validate(constraints.Input{
			Assignments: []domain.Assignment{{BlockID: "b1", PersonID: "r2", RotationTemplateID: "t1", Role: domain.RolePrimary}},
			Persons:     absentPerson,
			Blocks:      map[string]domain.Block{"b1": block},
			Templates:   map[string]domain.RotationTemplate{"t1": template},
			Absences:    []domain.Absence{absence},
			Now:         start,
		})
		Expect(dirty.Valid).To(BeFalse())
		Expect(dirty.ViolationCounts[domain.SeverityCritical]).To(BeNumerically(">", 0))
	})

	It("sorts violations most-severe first", func() {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		block := domain.Block{ID: "b1", Date: start, Session: domain.SessionAM}
		persons := map[string]domain.Person{
			"r1": {ID: "r1", Kind: domain.PersonKindResident, TrainingYear: domain.PGY1},
		}
		absence := domain.Absence{ID: "a1", PersonID: "r1", Kind: domain.AbsenceDeployment, Start: start, End: start}

		report := constraints.Validate(constraints.Input{
			Assignments: []domain.Assignment{{BlockID: "b1", PersonID: "r1", Role: domain.RolePrimary}},
			Persons:     persons,
			Blocks:      map[string]domain.Block{"b1": block},
			Absences:    []domain.Absence{absence},
			Now:         start,
		})

		Expect(len(report.Violations)).To(BeNumerically(">", 0))
		for i := 1; i < len(report.Violations); i++ {
			Expect(severityRank(report.Violations[i-1].Severity)).To(BeNumerically("<=", severityRank(report.Violations[i].Severity)))
		}
	})
})

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
