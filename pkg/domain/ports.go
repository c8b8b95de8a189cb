package domain

import (
	"context"
	"time"
)

// PersonStore is the transactional record store's CRUD surface for
// Person.
type PersonStore interface {
	GetPerson(ctx context.Context, id string) (*Person, error)
	ListPersons(ctx context.Context) ([]Person, error)
	UpsertPerson(ctx context.Context, p Person) error
}

// BlockStore is the transactional record store's CRUD surface for Block,
// with range queries by date.
type BlockStore interface {
	GetBlock(ctx context.Context, id string) (*Block, error)
	ListBlocksByDateRange(ctx context.Context, start, end time.Time) ([]Block, error)
	UpsertBlock(ctx context.Context, b Block) error
}

// RotationTemplateStore is the transactional record store's CRUD surface
// for RotationTemplate.
type RotationTemplateStore interface {
	GetRotationTemplate(ctx context.Context, id string) (*RotationTemplate, error)
	ListRotationTemplates(ctx context.Context) ([]RotationTemplate, error)
	UpsertRotationTemplate(ctx context.Context, t RotationTemplate) error
}

// AssignmentStore is the transactional record store's CRUD surface for
// Assignment, with range queries by date and by person, and
// optimistic-concurrency updates via ExpectedVersion.
type AssignmentStore interface {
	ListAssignmentsByDateRange(ctx context.Context, start, end time.Time) ([]Assignment, error)
	ListAssignmentsByPerson(ctx context.Context, personID string) ([]Assignment, error)
	ReplaceAssignment(ctx context.Context, old, new Assignment, expectedVersion int) error
}

// AbsenceStore is the transactional record store's CRUD surface for
// Absence, with range queries by person.
type AbsenceStore interface {
	ListAbsencesByPerson(ctx context.Context, personID string) ([]Absence, error)
	ListAbsencesByDateRange(ctx context.Context, start, end time.Time) ([]Absence, error)
	UpsertAbsence(ctx context.Context, a Absence) error
}

// SwapStore is the transactional record store's CRUD surface for Swap.
type SwapStore interface {
	GetSwap(ctx context.Context, id string) (*Swap, error)
	ListPendingSwapsByPerson(ctx context.Context, personID string) ([]Swap, error)
	ListPendingSwaps(ctx context.Context) ([]Swap, error)
	UpsertSwap(ctx context.Context, s Swap) error
}

// RecordStore composes every entity CRUD surface the core consumes from
// its persistence collaborator.
type RecordStore interface {
	PersonStore
	BlockStore
	RotationTemplateStore
	AssignmentStore
	AbsenceStore
	SwapStore
}

// NotificationSink is the "publish(event, payload)" sink the core never
// blocks on delivery to.
type NotificationSink interface {
	Publish(ctx context.Context, event string, payload map[string]interface{})
}

// MoonlightingHours is the external moonlighting-hours collaborator: a
// map of Person ID to ISO date to hours worked outside the program.
type MoonlightingHours map[string]map[string]float64

// Role is an authenticated principal's role tag, carried with every
// mutation request.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
	RoleResident    Role = "resident"
	RoleFaculty     Role = "faculty"
)

// Principal is the authenticated identity collaborator carried with every
// mutation request.
type Principal struct {
	PersonID string
	Role     Role
}
