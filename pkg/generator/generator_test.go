package generator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/generator"
	"github.com/dutyroster/scheduler-core/pkg/generator/strategies"
)

func buildContext() strategies.Context {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return strategies.Context{
		Residents: []domain.Person{
			{ID: "r1", Name: "alice", Kind: domain.PersonKindResident, TrainingYear: domain.PGY1},
			{ID: "r2", Name: "bob", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
		},
		Faculty: []domain.Person{
			{ID: "f1", Name: "carol", Kind: domain.PersonKindFaculty},
		},
		Blocks: []domain.Block{
			{ID: "b1", Date: start, Session: domain.SessionAM, BlockNumber: 1},
			{ID: "b2", Date: start, Session: domain.SessionPM, BlockNumber: 2},
			{ID: "b3", Date: start.AddDate(0, 0, 1), Session: domain.SessionAM, BlockNumber: 3},
		},
		Templates: []domain.RotationTemplate{
			{ID: "t1", Name: "inpatient"},
		},
	}
}

func newGenerator() *generator.CandidateGenerator {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return generator.New(log, []domain.Algorithm{
		domain.AlgorithmGreedy,
		domain.AlgorithmHybrid,
		domain.AlgorithmConstraintProgramming,
		domain.AlgorithmMILP,
	}, true)
}

var _ = Describe("CandidateGenerator", func() {
	It("generates a single candidate for the requested algorithm", func() {
		g := newGenerator()
		ctx := buildContext()

		candidate := g.GenerateSingle(ctx, domain.GeneratorParams{Algorithm: domain.AlgorithmGreedy, Seed: 1})

		Expect(candidate).NotTo(BeNil())
		Expect(candidate.Algorithm).To(Equal(domain.AlgorithmGreedy))
		Expect(candidate.Feasible).To(BeTrue())
		Expect(candidate.Assignments).NotTo(BeEmpty())
	})

	It("satisfies P5: identical inputs and seed produce identical candidates", func() {
		g := newGenerator()
		ctx := buildContext()
		params := domain.GeneratorParams{Algorithm: domain.AlgorithmHybrid, Seed: 42}

		c1 := g.GenerateSingle(ctx, params)
		c2 := g.GenerateSingle(ctx, params)

		Expect(c1).NotTo(BeNil())
		Expect(c2).NotTo(BeNil())
		Expect(c1.Assignments).To(Equal(c2.Assignments))
	})

	It("returns a single attempt at the requested algorithm when k=1", func() {
		g := newGenerator()
		ctx := buildContext()

		candidates := g.GenerateK(ctx, domain.GeneratorParams{Algorithm: domain.AlgorithmMILP, Seed: 1}, 1)

		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Algorithm).To(Equal(domain.AlgorithmMILP))
	})

	It("uses distinct algorithms from the preference list for k>1", func() {
		g := newGenerator()
		ctx := buildContext()

		candidates := g.GenerateK(ctx, domain.GeneratorParams{Seed: 1}, 3)

		Expect(candidates).To(HaveLen(3))
		seen := map[domain.Algorithm]bool{}
		for _, c := range candidates {
			seen[c.Algorithm] = true
		}
		Expect(seen).To(HaveLen(3))
	})

	It("restarts n times with seeds seed+0..n-1 and a timeout/n share", func() {
		g := newGenerator()
		ctx := buildContext()
		base := domain.GeneratorParams{Algorithm: domain.AlgorithmGreedy, Seed: 100, TimeoutSeconds: 30}

		candidates := g.GenerateWithRestart(ctx, base, 3)

		Expect(candidates).To(HaveLen(3))
		for i, c := range candidates {
			Expect(c.Params.Seed).To(Equal(base.Seed + int64(i)))
			Expect(c.Params.TimeoutSeconds).To(BeNumerically("~", 10.0, 0.001))
		}
	})

	It("replaces ceil(rate*n) assignments under perturbation without requiring re-validated feasibility", func() {
		g := newGenerator()
		ctx := buildContext()
		base := g.GenerateSingle(ctx, domain.GeneratorParams{Algorithm: domain.AlgorithmGreedy, Seed: 1})
		Expect(base).NotTo(BeNil())

		perturbed := g.GenerateWithPerturbation(ctx, *base, 0.5)

		Expect(perturbed).NotTo(BeNil())
		Expect(perturbed.Feasible).To(BeTrue())
		Expect(perturbed.Assignments).To(HaveLen(len(base.Assignments)))

		changed := 0
		for i := range base.Assignments {
			if perturbed.Assignments[i] != base.Assignments[i] {
				changed++
			}
		}
		Expect(changed).To(BeNumerically(">=", 1))
	})

	It("returns nil for perturbation when there are no residents or blocks to draw from", func() {
		g := newGenerator()
		base := domain.Candidate{Assignments: []domain.Assignment{{BlockID: "b1", PersonID: "r1"}}}

		Expect(g.GenerateWithPerturbation(strategies.Context{}, base, 0.5)).To(BeNil())
	})

	It("falls back to greedy when an unknown algorithm is requested", func() {
		g := newGenerator()
		ctx := buildContext()

		candidate := g.GenerateSingle(ctx, domain.GeneratorParams{Algorithm: domain.Algorithm("unknown"), Seed: 1})

		Expect(candidate).NotTo(BeNil())
		Expect(candidate.Algorithm).To(Equal(domain.AlgorithmGreedy))
	})

	It("returns nil without raising when there are no residents to assign", func() {
		g := newGenerator()

		candidate := g.GenerateSingle(strategies.Context{Blocks: buildContext().Blocks}, domain.GeneratorParams{Algorithm: domain.AlgorithmGreedy})

		Expect(candidate).To(BeNil())
	})
})
