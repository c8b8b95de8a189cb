package control_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/control"
	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/generator"
	"github.com/dutyroster/scheduler-core/pkg/generator/strategies"
)

func scenario(withBlockingAbsence bool) (strategies.Context, constraints.Input) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	residents := []domain.Person{
		{ID: "r1", Name: "alice", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
		{ID: "r2", Name: "bob", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2},
	}
	blocks := []domain.Block{
		{ID: "b1", Date: start, Session: domain.SessionAM, BlockNumber: 1},
		{ID: "b2", Date: start, Session: domain.SessionPM, BlockNumber: 2},
	}
	faculty := []domain.Person{
		{ID: "f1", Name: "carol", Kind: domain.PersonKindFaculty},
	}
	templates := []domain.RotationTemplate{{ID: "t1", Name: "clinic", SupervisionRequired: true}}

	persons := map[string]domain.Person{"r1": residents[0], "r2": residents[1], "f1": faculty[0]}
	blockMap := map[string]domain.Block{"b1": blocks[0], "b2": blocks[1]}
	templateMap := map[string]domain.RotationTemplate{"t1": templates[0]}

	var absences []domain.Absence
	if withBlockingAbsence {
		absences = []domain.Absence{{
			ID:       "abs-1",
			PersonID: "r1",
			Kind:     domain.AbsenceDeployment,
			Start:    start,
			End:      start.AddDate(0, 0, 1),
		}}
	}

	genCtx := strategies.Context{Residents: residents, Faculty: faculty, Blocks: blocks, Templates: templates}
	constraintsInput := constraints.Input{Persons: persons, Blocks: blockMap, Templates: templateMap, Absences: absences, Now: start}
	return genCtx, constraintsInput
}

func newTestLoop(dir string, withBlockingAbsence bool, advisor control.Advisor) *control.Loop {
	genCtx, constraintsInput := scenario(withBlockingAbsence)

	store, err := control.NewRunStore(dir)
	Expect(err).NotTo(HaveOccurred())

	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	gen := generator.New(log, []domain.Algorithm{domain.AlgorithmGreedy}, true)

	return control.NewLoop(log, store, gen, advisor, []domain.Algorithm{domain.AlgorithmGreedy}, genCtx, constraintsInput, 2)
}

var _ = Describe("Loop", func() {
	It("satisfies S1: converges to target on a clean scenario", func() {
		loop := newTestLoop(GinkgoT().TempDir(), false, nil)

		state, err := loop.Start(context.Background(), "s1", time.Now(), time.Now(), 100, 0.95, 20, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(domain.RunCompleted))
		Expect(state.BestScore).To(BeNumerically(">=", 0.95))
		Expect(state.BestIteration).To(BeNumerically("<=", 100))
	})

	It("satisfies S2: exhausts on an unreachable target with a blocking absence", func() {
		dir := GinkgoT().TempDir()
		loop := newTestLoop(dir, true, nil)

		state, err := loop.Start(context.Background(), "s2", time.Now(), time.Now(), 100, 1.0, 10, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(domain.RunExhausted))
		Expect(state.IterationsSinceImprovement).To(BeNumerically(">=", 10))

		store, err := control.NewRunStore(dir)
		Expect(err).NotTo(HaveOccurred())
		history, err := store.LoadHistory(state.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(state.CurrentIteration))
	})

	It("satisfies P3: best_score is monotonically non-decreasing and best_iteration never exceeds current_iteration", func() {
		dir := GinkgoT().TempDir()
		loop := newTestLoop(dir, true, nil)

		state, err := loop.Start(context.Background(), "p3", time.Now(), time.Now(), 100, 1.0, 5, 1)
		Expect(err).NotTo(HaveOccurred())

		store, err := control.NewRunStore(dir)
		Expect(err).NotTo(HaveOccurred())
		history, err := store.LoadHistory(state.RunID)
		Expect(err).NotTo(HaveOccurred())

		best := 0.0
		for _, record := range history {
			if record.Score > best {
				best = record.Score
			}
		}
		Expect(state.BestScore).To(Equal(best))
		Expect(state.BestIteration).To(BeNumerically("<=", state.CurrentIteration))
	})

	It("satisfies P4: history contains exactly current_iteration records, 1-based and contiguous", func() {
		dir := GinkgoT().TempDir()
		loop := newTestLoop(dir, true, nil)

		state, err := loop.Start(context.Background(), "p4", time.Now(), time.Now(), 100, 1.0, 8, 1)
		Expect(err).NotTo(HaveOccurred())

		store, err := control.NewRunStore(dir)
		Expect(err).NotTo(HaveOccurred())
		history, err := store.LoadHistory(state.RunID)
		Expect(err).NotTo(HaveOccurred())

		Expect(history).To(HaveLen(state.CurrentIteration))
		for i, record := range history {
			Expect(record.Iteration).To(Equal(i + 1))
		}
	})

	It("satisfies P5: identical inputs and seed produce identical history lines modulo timestamps", func() {
		genCtx, constraintsInput := scenario(true)

		run := func(dir string) []domain.IterationRecord {
			store, err := control.NewRunStore(dir)
			Expect(err).NotTo(HaveOccurred())
			log := logrus.New()
			log.SetOutput(GinkgoWriter)
			gen := generator.New(log, []domain.Algorithm{domain.AlgorithmGreedy}, true)
			loop := control.NewLoop(log, store, gen, nil, []domain.Algorithm{domain.AlgorithmGreedy}, genCtx, constraintsInput, 2)
			state, err := loop.Start(context.Background(), "p5", time.Now(), time.Now(), 20, 1.0, 5, 1)
			Expect(err).NotTo(HaveOccurred())
			history, err := store.LoadHistory(state.RunID)
			Expect(err).NotTo(HaveOccurred())
			return history
		}

		history1 := run(GinkgoT().TempDir())
		history2 := run(GinkgoT().TempDir())

		Expect(history1).To(HaveLen(len(history2)))
		for i := range history1 {
			Expect(history1[i].Score).To(Equal(history2[i].Score))
			Expect(history1[i].Valid).To(Equal(history2[i].Valid))
			Expect(history1[i].Params).To(Equal(history2[i].Params))
		}
	})

	It("satisfies P6: should_stop reports target_reached regardless of other counters", func() {
		state := domain.RunState{
			BestScore:                  0.99,
			TargetScore:                0.95,
			IterationsSinceImprovement: 0,
			CurrentIteration:           1,
			MaxIterations:              1000,
			StagnationLimit:            1000,
		}
		stop, reason := control.ShouldStop(state)
		Expect(stop).To(BeTrue())
		Expect(reason).To(Equal("target_reached"))
	})

	It("resumes a run by repairing a torn trailing history line and continuing contiguously", func() {
		dir := GinkgoT().TempDir()
		loop := newTestLoop(dir, true, nil)

		state, err := loop.Start(context.Background(), "resume", time.Now(), time.Now(), 3, 1.0, 1000, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(domain.RunExhausted)) // stopped at max_iterations=3

		store, err := control.NewRunStore(dir)
		Expect(err).NotTo(HaveOccurred())

		historyBefore, err := store.LoadHistory(state.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(historyBefore).To(HaveLen(3))

		// Simulate a crash mid-write: append a torn (non-JSON) trailing
		// line directly, then reopen the run for more iterations.
		historyPath := filepath.Join(dir, state.RunID, "history.ndjson")
		f, err := os.OpenFile(historyPath, os.O_APPEND|os.O_WRONLY, 0o644)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString(`{"iteration":4,"score":`)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		state.Status = domain.RunRunning
		state.MaxIterations = 6
		Expect(store.SaveState(state)).To(Succeed())

		resumed, err := loop.Resume(context.Background(), state.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed.Status).To(Equal(domain.RunExhausted))
		Expect(resumed.CurrentIteration).To(Equal(6))

		historyAfter, err := store.LoadHistory(state.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(historyAfter).To(HaveLen(6))
		for i, record := range historyAfter {
			Expect(record.Iteration).To(Equal(i + 1))
		}
	})
})
