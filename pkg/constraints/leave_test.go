package constraints_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

var _ = Describe("leave validator", func() {
	Describe("ShouldBlockAssignment", func() {
		It("always blocks deployment absences", func() {
			a := domain.Absence{Kind: domain.AbsenceDeployment}
			Expect(constraints.ShouldBlockAssignment(a)).To(BeTrue())
		})

		It("never blocks vacation or conference", func() {
			Expect(constraints.ShouldBlockAssignment(domain.Absence{Kind: domain.AbsenceVacation})).To(BeFalse())
			Expect(constraints.ShouldBlockAssignment(domain.Absence{Kind: domain.AbsenceConference})).To(BeFalse())
		})

		It("blocks sick leave only past 3 days", func() {
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			short := domain.Absence{Kind: domain.AbsenceSick, Start: start, End: start.AddDate(0, 0, 2)} // 3 days
			long := domain.Absence{Kind: domain.AbsenceSick, Start: start, End: start.AddDate(0, 0, 4)}  // 5 days

			Expect(constraints.ShouldBlockAssignment(short)).To(BeFalse())
			Expect(constraints.ShouldBlockAssignment(long)).To(BeTrue())
		})

		It("blocks medical leave only past 7 days", func() {
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			short := domain.Absence{Kind: domain.AbsenceMedical, Start: start, End: start.AddDate(0, 0, 6)} // 7 days
			long := domain.Absence{Kind: domain.AbsenceMedical, Start: start, End: start.AddDate(0, 0, 8)}  // 9 days

			Expect(constraints.ShouldBlockAssignment(short)).To(BeFalse())
			Expect(constraints.ShouldBlockAssignment(long)).To(BeTrue())
		})

		It("defaults to blocking for unknown kinds", func() {
			a := domain.Absence{Kind: domain.AbsenceKind("unrecognized")}
			Expect(constraints.ShouldBlockAssignment(a)).To(BeTrue())
		})

		It("honors an explicit override over the derived default", func() {
			no := false
			a := domain.Absence{Kind: domain.AbsenceDeployment, BlockingOverride: &no}
			Expect(constraints.ShouldBlockAssignment(a)).To(BeFalse())
		})
	})

	Describe("ValidateNoAssignmentDuringBlock", func() {
		It("reports one CRITICAL violation per conflicting date", func() {
			// S4: deployment absence days 10-20, five primary assignments within it.
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			absence := domain.Absence{
				ID:       "abs-1",
				PersonID: "resident-1",
				Kind:     domain.AbsenceDeployment,
				Start:    start.AddDate(0, 0, 9),
				End:      start.AddDate(0, 0, 19),
			}
			assignedDates := []time.Time{
				start.AddDate(0, 0, 10),
				start.AddDate(0, 0, 12),
				start.AddDate(0, 0, 14),
				start.AddDate(0, 0, 16),
				start.AddDate(0, 0, 18),
			}

			violations := constraints.ValidateNoAssignmentDuringBlock("resident-1", absence, assignedDates)

			Expect(violations).To(HaveLen(5))
			for _, v := range violations {
				Expect(v.Severity).To(Equal(domain.SeverityCritical))
				Expect(v.RuleType).To(Equal("assignment_during_block"))
			}
		})

		It("reports nothing for a non-blocking absence", func() {
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			absence := domain.Absence{Kind: domain.AbsenceVacation, Start: start, End: start.AddDate(0, 0, 5)}
			violations := constraints.ValidateNoAssignmentDuringBlock("resident-2", absence, []time.Time{start.AddDate(0, 0, 2)})
			Expect(violations).To(BeEmpty())
		})
	})

	Describe("ValidatePostDeploymentRecovery", func() {
		It("flags assignments inside the 7-day recovery window", func() {
			end := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
			assignments := []time.Time{end.AddDate(0, 0, 2), end.AddDate(0, 0, 10)}
			v := constraints.ValidatePostDeploymentRecovery("resident-3", end, assignments)
			Expect(v).NotTo(BeNil())
		})

		It("passes when all assignments are after recovery ends", func() {
			end := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
			assignments := []time.Time{end.AddDate(0, 0, 8)}
			v := constraints.ValidatePostDeploymentRecovery("resident-4", end, assignments)
			Expect(v).To(BeNil())
		})
	})

	Describe("ValidateTentativeReturn", func() {
		It("warns when the tentative return is within 7 days", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			a := domain.Absence{End: now.AddDate(0, 0, 3), TentativeReturn: true}
			w := constraints.ValidateTentativeReturn("resident-5", a, now)
			Expect(w).NotTo(BeNil())
		})

		It("does not warn for confirmed return dates", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			a := domain.Absence{End: now.AddDate(0, 0, 3), TentativeReturn: false}
			w := constraints.ValidateTentativeReturn("resident-6", a, now)
			Expect(w).To(BeNil())
		})
	})
})
