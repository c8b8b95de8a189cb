// Package memory implements domain.RecordStore entirely in-process, for
// unit tests across the module and for local development without a
// Postgres instance. It trades durability for zero setup cost; every
// map is guarded by a single mutex since the core's run volume never
// approaches a scale where that would contend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
)

// assignmentKey identifies one (block, person) assignment slot.
type assignmentKey struct {
	BlockID  string
	PersonID string
}

// Store is an in-memory domain.RecordStore.
type Store struct {
	mu sync.RWMutex

	persons   map[string]domain.Person
	blocks    map[string]domain.Block
	templates map[string]domain.RotationTemplate
	absences  map[string]domain.Absence
	swaps     map[string]domain.Swap

	assignments map[assignmentKey]domain.Assignment
	versions    map[string]int // blockID -> version, incremented on every replace touching that block
}

var _ domain.RecordStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		persons:     make(map[string]domain.Person),
		blocks:      make(map[string]domain.Block),
		templates:   make(map[string]domain.RotationTemplate),
		absences:    make(map[string]domain.Absence),
		swaps:       make(map[string]domain.Swap),
		assignments: make(map[assignmentKey]domain.Assignment),
		versions:    make(map[string]int),
	}
}

func (s *Store) GetPerson(_ context.Context, id string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, fmt.Errorf("memory: person %s not found", id)
	}
	return &p, nil
}

func (s *Store) ListPersons(_ context.Context) ([]domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertPerson(_ context.Context, p domain.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[p.ID] = p
	return nil
}

func (s *Store) GetBlock(_ context.Context, id string) (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("memory: block %s not found", id)
	}
	return &b, nil
}

func (s *Store) ListBlocksByDateRange(_ context.Context, start, end time.Time) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Block
	for _, b := range s.blocks {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Session < out[j].Session
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *Store) UpsertBlock(_ context.Context, b domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.ID] = b
	return nil
}

func (s *Store) GetRotationTemplate(_ context.Context, id string) (*domain.RotationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("memory: rotation template %s not found", id)
	}
	return &t, nil
}

func (s *Store) ListRotationTemplates(_ context.Context) ([]domain.RotationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RotationTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertRotationTemplate(_ context.Context, t domain.RotationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func (s *Store) ListAssignmentsByDateRange(_ context.Context, start, end time.Time) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Assignment
	for key, a := range s.assignments {
		b, ok := s.blocks[key.BlockID]
		if !ok || b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })
	return out, nil
}

func (s *Store) ListAssignmentsByPerson(_ context.Context, personID string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Assignment
	for _, a := range s.assignments {
		if a.PersonID == personID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })
	return out, nil
}

// ReplaceAssignment clears old's (BlockID, PersonID) slot, if occupied,
// and writes new in its place, guarded by expectedVersion against
// old.BlockID's version counter. A version mismatch returns
// mutation.ErrMutationConflict, matching the sentinel pkg/mutation's
// retry loop checks for with errors.Is. old need not already exist —
// a block's first-ever assignment is written the same way, against
// the block's implicit version 0.
func (s *Store) ReplaceAssignment(_ context.Context, old, new domain.Assignment, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions[old.BlockID] != expectedVersion {
		return mutation.ErrMutationConflict
	}

	delete(s.assignments, assignmentKey{BlockID: old.BlockID, PersonID: old.PersonID})

	newKey := assignmentKey{BlockID: new.BlockID, PersonID: new.PersonID}
	s.assignments[newKey] = new
	s.versions[old.BlockID]++
	return nil
}

func (s *Store) ListAbsencesByPerson(_ context.Context, personID string) ([]domain.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Absence
	for _, a := range s.absences {
		if a.PersonID == personID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) ListAbsencesByDateRange(_ context.Context, start, end time.Time) ([]domain.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Absence
	for _, a := range s.absences {
		if a.End.Before(start) || a.Start.After(end) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) UpsertAbsence(_ context.Context, a domain.Absence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences[a.ID] = a
	return nil
}

func (s *Store) GetSwap(_ context.Context, id string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sw, ok := s.swaps[id]
	if !ok {
		return nil, fmt.Errorf("memory: swap %s not found", id)
	}
	return &sw, nil
}

func (s *Store) ListPendingSwapsByPerson(_ context.Context, personID string) ([]domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Swap
	for _, sw := range s.swaps {
		if sw.Status != domain.SwapPending {
			continue
		}
		if sw.SourcePersonID == personID || sw.TargetPersonID == personID {
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPendingSwaps(_ context.Context) ([]domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Swap
	for _, sw := range s.swaps {
		if sw.Status == domain.SwapPending {
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertSwap(_ context.Context, sw domain.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps[sw.ID] = sw
	return nil
}

// Snapshot builds a mutation.Snapshot for every assignment touching
// blockIDs, with each block's current version counter — the read the
// mutation engine takes before validating and applying a swap.
func (s *Store) Snapshot(_ context.Context, blockIDs []string) mutation.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(blockIDs))
	for _, id := range blockIDs {
		wanted[id] = true
	}

	snap := mutation.Snapshot{Versions: make(map[string]int, len(blockIDs))}
	for key, a := range s.assignments {
		if wanted[key.BlockID] {
			snap.Assignments = append(snap.Assignments, a)
		}
	}
	for _, id := range blockIDs {
		snap.Versions[id] = s.versions[id]
	}
	return snap
}
