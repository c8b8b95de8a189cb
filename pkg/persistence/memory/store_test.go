package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
	"github.com/dutyroster/scheduler-core/pkg/persistence/memory"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *memory.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New()
	})

	It("round-trips a Person", func() {
		p := domain.Person{ID: "p1", Name: "Dr. Rivera", Kind: domain.PersonKindResident, TrainingYear: domain.PGY2}
		Expect(store.UpsertPerson(ctx, p)).To(Succeed())

		got, err := store.GetPerson(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(*got).To(Equal(p))
	})

	It("returns an error for a missing Person", func() {
		_, err := store.GetPerson(ctx, "nope")
		Expect(err).To(HaveOccurred())
	})

	It("lists blocks within a date range, sorted", func() {
		day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		Expect(store.UpsertBlock(ctx, domain.Block{ID: "b2", Date: day2, Session: domain.SessionAM})).To(Succeed())
		Expect(store.UpsertBlock(ctx, domain.Block{ID: "b1", Date: day1, Session: domain.SessionPM})).To(Succeed())
		Expect(store.UpsertBlock(ctx, domain.Block{ID: "b0", Date: day1, Session: domain.SessionAM})).To(Succeed())

		blocks, err := store.ListBlocksByDateRange(ctx, day1, day2)
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(HaveLen(3))
		Expect(blocks[0].ID).To(Equal("b0"))
		Expect(blocks[1].ID).To(Equal("b1"))
		Expect(blocks[2].ID).To(Equal("b2"))
	})

	Describe("ReplaceAssignment", func() {
		BeforeEach(func() {
			Expect(store.UpsertBlock(ctx, domain.Block{ID: "blk-1", Date: time.Now()})).To(Succeed())
		})

		It("writes a block's first assignment against the implicit version 0", func() {
			err := store.ReplaceAssignment(ctx, domain.Assignment{BlockID: "blk-1", PersonID: "alice"}, domain.Assignment{BlockID: "blk-1", PersonID: "bob", Role: domain.RolePrimary}, 0)
			Expect(err).NotTo(HaveOccurred())

			assigned, err := store.ListAssignmentsByPerson(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(assigned).To(HaveLen(1))
			Expect(assigned[0].BlockID).To(Equal("blk-1"))
		})

		It("rejects a stale expectedVersion with ErrMutationConflict", func() {
			err := store.ReplaceAssignment(ctx, domain.Assignment{BlockID: "blk-1", PersonID: "alice"}, domain.Assignment{BlockID: "blk-1", PersonID: "bob"}, 7)
			Expect(err).To(MatchError(mutation.ErrMutationConflict))
		})
	})

	It("tracks pending swaps per person", func() {
		now := time.Now()
		Expect(store.UpsertSwap(ctx, domain.Swap{ID: "s1", SourcePersonID: "alice", TargetPersonID: "bob", Status: domain.SwapPending, CreatedAt: now})).To(Succeed())
		Expect(store.UpsertSwap(ctx, domain.Swap{ID: "s2", SourcePersonID: "carol", Status: domain.SwapExecuted, CreatedAt: now})).To(Succeed())

		pending, err := store.ListPendingSwapsByPerson(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))
		Expect(pending[0].ID).To(Equal("s1"))

		all, err := store.ListPendingSwaps(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})
})
