package resilience_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/control"
	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/resilience"
)

func flatTrajectory(objective float64, n int) []resilience.SolverState {
	traj := make([]resilience.SolverState, n)
	for i := range traj {
		traj[i] = resilience.SolverState{Iteration: i, Objective: objective}
	}
	return traj
}

var _ = Describe("MetastabilityDetector", func() {
	detector := resilience.NewMetastabilityDetector()

	It("reports healthy search when improving steadily and not stagnant", func() {
		traj := make([]resilience.SolverState, 30)
		for i := range traj {
			traj[i] = resilience.SolverState{Iteration: i, Objective: float64(i)}
		}
		analysis := detector.Analyze(traj, 0)
		Expect(analysis.IsMetastable).To(BeFalse())
		Expect(analysis.RecommendedStrategy).To(Equal(control.ContinueSearch))
	})

	It("detects a plateau from a flat trajectory window", func() {
		traj := flatTrajectory(0.8, 30)
		analysis := detector.Analyze(traj, 10)
		Expect(analysis.IsMetastable).To(BeTrue())
		Expect(analysis.RecommendedStrategy).To(Equal(control.IncreaseTemperature))
	})

	It("recommends basin hopping when both plateaued and stagnant", func() {
		traj := flatTrajectory(0.8, 30)
		analysis := detector.Analyze(traj, 50)
		Expect(analysis.IsMetastable).To(BeTrue())
		Expect(analysis.RecommendedStrategy).To(Equal(control.BasinHopping))
	})

	It("escalates to a new-seed restart after prolonged stagnation", func() {
		traj := flatTrajectory(0.8, 30)
		analysis := detector.Analyze(traj, 250)
		Expect(analysis.RecommendedStrategy).To(Equal(control.RestartNewSeed))
		Expect(analysis.Confidence).To(Equal(1.0))
	})
})

var _ = Describe("MetastabilityAdvisor", func() {
	It("implements control.Advisor and only re-analyzes at the configured interval", func() {
		advisor := resilience.NewMetastabilityAdvisor(resilience.NewMetastabilityDetector(), 10)

		var recommendation control.EscapeStrategy
		for i := 1; i <= 9; i++ {
			recommendation = advisor.Recommend(domain.RunState{CurrentIteration: i, BestScore: 0.8, IterationsSinceImprovement: 60})
			Expect(recommendation).To(Equal(control.ContinueSearch))
		}

		recommendation = advisor.Recommend(domain.RunState{CurrentIteration: 10, BestScore: 0.8, IterationsSinceImprovement: 60})
		Expect(recommendation).NotTo(Equal(control.ContinueSearch))
		Expect(advisor.LastAnalysis().IsMetastable).To(BeTrue())
	})
})
