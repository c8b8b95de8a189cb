package mutation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
)

var _ = Describe("BuildCoverageView", func() {
	It("is a pure read-side derivation: identical inputs produce an identical view", func() {
		swaps := []domain.Swap{
			{ID: "s1", SourcePersonID: "res-1", TargetPersonID: "res-2", SourceWeek: day(0), Kind: domain.SwapAbsorb, Status: domain.SwapExecuted},
		}

		first := mutation.BuildCoverageView(day(0), swaps, nil)
		second := mutation.BuildCoverageView(day(0), swaps, nil)

		Expect(first).To(Equal(second))
	})

	It("marks an absorb swap on the query date as active coverage", func() {
		swaps := []domain.Swap{
			{ID: "s1", SourcePersonID: "res-1", TargetPersonID: "res-2", SourceWeek: day(0), Kind: domain.SwapAbsorb, Status: domain.SwapExecuted},
		}

		view := mutation.BuildCoverageView(day(0), swaps, nil)

		Expect(view.ActiveCoverage).To(HaveLen(1))
		rel := view.ActiveCoverage[0]
		Expect(rel.Type).To(Equal(mutation.CoverageSwapAbsorb))
		Expect(rel.CoveringPersonID).To(Equal("res-2"))
		Expect(rel.CoveredPersonID).To(Equal("res-1"))
	})

	It("produces two exchange relationships for an executed one-to-one swap within the window", func() {
		swaps := []domain.Swap{
			{
				ID: "s1", SourcePersonID: "res-1", TargetPersonID: "res-2",
				SourceWeek: day(0), TargetWeek: day(3),
				Kind: domain.SwapOneToOne, Status: domain.SwapExecuted,
			},
		}

		view := mutation.BuildCoverageView(day(0), swaps, nil)

		all := append(append([]mutation.CoverageRelationship{}, view.ActiveCoverage...), view.UpcomingCoverage...)
		Expect(all).To(HaveLen(2))
		for _, rel := range all {
			Expect(rel.Type).To(Equal(mutation.CoverageSwapExchange))
		}
	})

	It("ignores swaps that have not executed", func() {
		swaps := []domain.Swap{
			{ID: "s1", SourcePersonID: "res-1", TargetPersonID: "res-2", SourceWeek: day(0), Kind: domain.SwapAbsorb, Status: domain.SwapPending},
		}

		view := mutation.BuildCoverageView(day(0), swaps, nil)

		Expect(view.ActiveCoverage).To(BeEmpty())
		Expect(view.UpcomingCoverage).To(BeEmpty())
	})

	It("surfaces a placeholder for an absence in range with no assigned coverer", func() {
		absences := []domain.Absence{
			{ID: "a1", PersonID: "res-3", Start: day(-1), End: day(2)},
		}

		view := mutation.BuildCoverageView(day(0), nil, absences)

		Expect(view.ActiveCoverage).To(HaveLen(1))
		Expect(view.ActiveCoverage[0].Type).To(Equal(mutation.CoverageAbsenceCoverage))
		Expect(view.ActiveCoverage[0].CoveringPersonID).To(Equal(""))
		Expect(view.ActiveCoverage[0].CoveredPersonID).To(Equal("res-3"))
	})

	It("ranks by-person summaries by total relationship count", func() {
		swaps := []domain.Swap{
			{ID: "s1", SourcePersonID: "res-1", TargetPersonID: "res-2", SourceWeek: day(0), Kind: domain.SwapAbsorb, Status: domain.SwapExecuted},
			{ID: "s2", SourcePersonID: "res-1", TargetPersonID: "res-2", SourceWeek: day(1), Kind: domain.SwapAbsorb, Status: domain.SwapExecuted},
		}

		view := mutation.BuildCoverageView(day(0), swaps, nil)

		Expect(view.ByPerson).NotTo(BeEmpty())
		Expect(view.ByPerson[0].PersonID).To(Equal("res-2"))
	})
})
