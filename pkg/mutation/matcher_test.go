package mutation_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
)

func day(n int) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

var _ = Describe("Swap matching", func() {
	persons := map[string]domain.Person{
		"res-1": {ID: "res-1", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
		"res-2": {ID: "res-2", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
		"res-3": {ID: "res-3", Kind: domain.PersonKindResident, TrainingYear: domain.PGY1},
	}
	profiles := map[string]mutation.EquityProfile{
		"res-1": {SundayCallCount: 2, WeekdayCallCount: 5},
		"res-2": {SundayCallCount: 2, WeekdayCallCount: 5},
		"res-3": {SundayCallCount: 0, WeekdayCallCount: 1},
	}

	Describe("ScoreCompatibility", func() {
		It("always returns a value in [0,1]", func() {
			target := domain.Swap{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne}
			candidate := domain.Swap{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(365), Kind: domain.SwapOneToOne}

			score := mutation.ScoreCompatibility(target, candidate, persons, profiles, mutation.DefaultMatchingCriteria())

			Expect(score).To(BeNumerically(">=", 0))
			Expect(score).To(BeNumerically("<=", 1))
		})

		It("scores a same-training-year, similarly-loaded, nearby pair higher than a distant mismatched one", func() {
			criteria := mutation.DefaultMatchingCriteria()
			target := domain.Swap{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne}

			close := domain.Swap{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne}
			far := domain.Swap{ID: "s3", SourcePersonID: "res-3", SourceWeek: day(200), Kind: domain.SwapOneToOne}

			closeScore := mutation.ScoreCompatibility(target, close, persons, profiles, criteria)
			farScore := mutation.ScoreCompatibility(target, far, persons, profiles, criteria)

			Expect(closeScore).To(BeNumerically(">", farScore))
		})
	})

	Describe("FindCompatibleSwaps", func() {
		It("excludes the target itself and non-pending swaps", func() {
			target := domain.Swap{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending}
			pending := []domain.Swap{
				target,
				{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne, Status: domain.SwapExecuted},
			}

			matches := mutation.FindCompatibleSwaps(target, pending, persons, profiles, mutation.DefaultMatchingCriteria())

			Expect(matches).To(BeEmpty())
		})

		It("ranks matches highest score first", func() {
			target := domain.Swap{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending}
			pending := []domain.Swap{
				target,
				{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
				{ID: "s3", SourcePersonID: "res-3", SourceWeek: day(33), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
			}
			criteria := mutation.MatchingCriteria{MaxDateSeparationDays: 60, MinimumScoreThreshold: 0}

			matches := mutation.FindCompatibleSwaps(target, pending, persons, profiles, criteria)

			Expect(len(matches)).To(BeNumerically(">=", 1))
			for i := 1; i < len(matches); i++ {
				Expect(matches[i-1].CompatibilityScore).To(BeNumerically(">=", matches[i].CompatibilityScore))
			}
		})
	})

	Describe("SuggestOptimalMatches", func() {
		It("truncates to top_k", func() {
			target := domain.Swap{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending}
			pending := []domain.Swap{
				target,
				{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
				{ID: "s3", SourcePersonID: "res-3", SourceWeek: day(32), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
			}
			criteria := mutation.MatchingCriteria{MaxDateSeparationDays: 60, MinimumScoreThreshold: 0}

			matches := mutation.SuggestOptimalMatches(target, pending, persons, profiles, criteria, 1)

			Expect(matches).To(HaveLen(1))
		})
	})

	Describe("AutoMatchPendingRequests", func() {
		It("reports zero processed requests for an empty queue", func() {
			result := mutation.AutoMatchPendingRequests(nil, persons, profiles, mutation.DefaultMatchingCriteria(), 0)

			Expect(result.TotalRequestsProcessed).To(Equal(0))
			Expect(result.SuccessfulMatches).To(BeEmpty())
		})

		It("leaves a lone pending swap with no match", func() {
			pending := []domain.Swap{
				{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
			}

			result := mutation.AutoMatchPendingRequests(pending, persons, profiles, mutation.DefaultMatchingCriteria(), 0)

			Expect(result.TotalRequestsProcessed).To(Equal(1))
			Expect(result.NoMatches).To(HaveLen(1))
		})

		It("pairs two compatible swaps and does not reuse a claimed candidate", func() {
			pending := []domain.Swap{
				{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
				{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
			}
			criteria := mutation.MatchingCriteria{MaxDateSeparationDays: 60, MinimumScoreThreshold: 0}

			result := mutation.AutoMatchPendingRequests(pending, persons, profiles, criteria, 0)

			Expect(result.TotalRequestsProcessed).To(Equal(2))
			Expect(result.SuccessfulMatches).To(HaveLen(1))
			Expect(result.NoMatches).To(BeEmpty())
		})

		It("ignores swaps that are not pending", func() {
			pending := []domain.Swap{
				{ID: "s1", SourcePersonID: "res-1", SourceWeek: day(30), Kind: domain.SwapOneToOne, Status: domain.SwapPending},
				{ID: "s2", SourcePersonID: "res-2", SourceWeek: day(31), Kind: domain.SwapOneToOne, Status: domain.SwapExecuted},
			}

			result := mutation.AutoMatchPendingRequests(pending, persons, profiles, mutation.DefaultMatchingCriteria(), 0)

			Expect(result.TotalRequestsProcessed).To(Equal(1))
		})
	})
})
