package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// ErrUnsupportedSwapKind is returned by Execute for a swap kind the
// engine has no executor for. The multi-way kind is accepted by the
// validator taxonomy but its execution semantics are undefined in the
// source this module was distilled from, so it is rejected here rather
// than guessed at.
var ErrUnsupportedSwapKind = errors.New("mutation: swap kind has no executor")

// ErrMutationConflict signals that ReplaceAssignment observed a version
// mismatch on both the initial attempt and the one retry with a fresh
// read — an optimistic-concurrency failure the caller must surface.
var ErrMutationConflict = errors.New("mutation: concurrent modification, retry exhausted")

// Invalidation lists what a completed mutation requires a cache layer
// to evict: every affected person's tag, plus the date range touched.
type Invalidation struct {
	PersonIDs []string
	DateStart time.Time
	DateEnd   time.Time
}

// Snapshot is the transactional read an Execute/Rollback call acts on:
// the current assignment set plus the store's per-block optimistic
// version, gathered by the caller in a single read so Execute's retry
// can re-resolve both from a fresh Snapshot without this package
// depending on how the store shapes its range queries.
type Snapshot struct {
	Assignments []domain.Assignment
	Versions    map[string]int // blockID -> version
}

func (s Snapshot) occupant(blockID string) (domain.Assignment, bool) {
	for _, a := range s.Assignments {
		if a.BlockID == blockID && a.Role == domain.RolePrimary {
			return a, true
		}
	}
	return domain.Assignment{}, false
}

// Execute validates and applies swap, in order: validate via
// constraints.ValidateSwapCreation/ValidatePostSwapCompliance against
// the post-swap assignment set, apply the assignment replacement (with
// one retry on optimistic-concurrency conflict, re-reading via refresh),
// and stamp executed_at and the rollback deadline. On any validator
// violation it aborts with no state change. It never re-enters the
// generator loop.
func Execute(
	ctx context.Context,
	store domain.AssignmentStore,
	snapshot Snapshot,
	refresh func(ctx context.Context) (Snapshot, error),
	in constraints.SwapCreationInputs,
	blocks []domain.Block,
	blockOfSourceWeek, blockOfTargetWeek string,
	persons map[string]domain.Person,
	templates map[string]domain.RotationTemplate,
	moonlighting domain.MoonlightingHours,
	now time.Time,
) (domain.Swap, []domain.Violation, Invalidation, error) {
	s := in.Swap

	if s.Kind == domain.SwapMultiWay {
		return s, nil, Invalidation{}, ErrUnsupportedSwapKind
	}

	if result := constraints.ValidateSwapCreation(in, now); !result.Valid {
		return s, nil, Invalidation{}, fmt.Errorf("mutation: swap rejected: %v", result.Errors)
	}

	postSwap := applySwapToAssignments(s, blockOfSourceWeek, blockOfTargetWeek, snapshot.Assignments)
	violations := constraints.ValidatePostSwapCompliance(blocks, postSwap, persons, templates, moonlighting)
	if len(violations) > 0 {
		return s, violations, Invalidation{}, fmt.Errorf("mutation: swap introduces a violation: %s", violations[0].Message)
	}

	if err := replaceWithRetry(ctx, store, snapshot, refresh, blockOfSourceWeek, s); err != nil {
		return s, violations, Invalidation{}, err
	}
	if s.Kind == domain.SwapOneToOne && blockOfTargetWeek != "" {
		if err := replaceWithRetry(ctx, store, snapshot, refresh, blockOfTargetWeek, s); err != nil {
			return s, violations, Invalidation{}, err
		}
	}

	executedAt := now
	deadline := executedAt.Add(domain.RollbackWindow)
	s.Status = domain.SwapExecuted
	s.ExecutedAt = &executedAt
	s.RollbackDeadline = &deadline

	return s, violations, invalidationFor(s), nil
}

// replaceWithRetry swaps the primary assignment occupying blockID to
// the swap's counterpart person. On an ErrMutationConflict from the
// store it re-resolves the occupant and version from refresh and
// retries exactly once, matching spec.md §7's stated MutationConflict
// handling ("retried once with fresh reads; a second failure is
// surfaced").
func replaceWithRetry(ctx context.Context, store domain.AssignmentStore, snapshot Snapshot, refresh func(context.Context) (Snapshot, error), blockID string, s domain.Swap) error {
	for attempt := 0; attempt < 2; attempt++ {
		occupant, found := snapshot.occupant(blockID)
		if !found {
			return fmt.Errorf("mutation: no assignment found on block %s", blockID)
		}

		replacement := occupant
		replacement.PersonID = counterpartFor(s, occupant.PersonID)

		err := store.ReplaceAssignment(ctx, occupant, replacement, snapshot.Versions[blockID])
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrMutationConflict) {
			return fmt.Errorf("mutation: replace assignment: %w", err)
		}
		if refresh == nil {
			return ErrMutationConflict
		}
		snapshot, err = refresh(ctx)
		if err != nil {
			return fmt.Errorf("mutation: refresh after conflict: %w", err)
		}
	}
	return ErrMutationConflict
}

func counterpartFor(s domain.Swap, occupant string) string {
	switch {
	case occupant == s.SourcePersonID:
		return s.TargetPersonID
	case occupant == s.TargetPersonID:
		return s.SourcePersonID
	default:
		return occupant
	}
}

// applySwapToAssignments returns assignments with the swap's effect
// applied in memory, for pre-execution compliance validation.
// One-to-one exchanges the primary occupant of both blocks; absorb
// moves the source block's occupant to the target person without
// touching a second block.
func applySwapToAssignments(s domain.Swap, blockOfSourceWeek, blockOfTargetWeek string, assignments []domain.Assignment) []domain.Assignment {
	out := make([]domain.Assignment, len(assignments))
	copy(out, assignments)

	for i := range out {
		if out[i].Role != domain.RolePrimary {
			continue
		}
		switch out[i].BlockID {
		case blockOfSourceWeek:
			out[i].PersonID = counterpartFor(s, out[i].PersonID)
		case blockOfTargetWeek:
			if s.Kind == domain.SwapOneToOne {
				out[i].PersonID = counterpartFor(s, out[i].PersonID)
			}
		}
	}
	return out
}

func invalidationFor(s domain.Swap) Invalidation {
	invalidation := Invalidation{
		PersonIDs: []string{s.SourcePersonID},
		DateStart: s.SourceWeek,
		DateEnd:   s.SourceWeek,
	}
	if s.TargetPersonID != "" {
		invalidation.PersonIDs = append(invalidation.PersonIDs, s.TargetPersonID)
	}
	if !s.TargetWeek.IsZero() {
		if s.TargetWeek.Before(invalidation.DateStart) {
			invalidation.DateStart = s.TargetWeek
		}
		if s.TargetWeek.After(invalidation.DateEnd) {
			invalidation.DateEnd = s.TargetWeek
		}
	}
	return invalidation
}

// Rollback reverses an executed swap, swapping the primary occupants
// back (counterpartFor is its own inverse) and setting the rolled-back
// status and RolledBackAt; ExecutedAt and RollbackDeadline keep their
// values. Callers must
// check constraints.ValidateSwapRollbackEligibility first; Rollback
// itself does not re-check the window.
func Rollback(
	ctx context.Context,
	store domain.AssignmentStore,
	snapshot Snapshot,
	refresh func(ctx context.Context) (Snapshot, error),
	s domain.Swap,
	blockOfSourceWeek, blockOfTargetWeek string,
	now time.Time,
) (domain.Swap, Invalidation, error) {
	if err := replaceWithRetry(ctx, store, snapshot, refresh, blockOfSourceWeek, s); err != nil {
		return s, Invalidation{}, err
	}
	if s.Kind == domain.SwapOneToOne && blockOfTargetWeek != "" {
		if err := replaceWithRetry(ctx, store, snapshot, refresh, blockOfTargetWeek, s); err != nil {
			return s, Invalidation{}, err
		}
	}

	rolledBackAt := now
	s.Status = domain.SwapRolledBack
	s.RolledBackAt = &rolledBackAt

	return s, invalidationFor(s), nil
}
