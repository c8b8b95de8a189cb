// Package postgres implements domain.RecordStore against a Postgres
// database via sqlx over pgx's database/sql driver. It is the
// durable counterpart to pkg/persistence/memory, the in-process
// implementation of the same interfaces.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
)

// Store is a domain.RecordStore backed by Postgres.
type Store struct {
	db  *sqlx.DB
	log *logrus.Logger
}

var _ domain.RecordStore = (*Store)(nil)

// Open connects to dsn using the pgx stdlib driver and wraps it in sqlx.
func Open(dsn string, log *logrus.Logger) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return New(db, log), nil
}

// New wraps an already-connected *sqlx.DB. Exposed separately from Open
// so tests can pass a sqlmock-backed *sqlx.DB.
func New(db *sqlx.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetPerson(ctx context.Context, id string) (*domain.Person, error) {
	var row struct {
		ID           string `db:"id"`
		Name         string `db:"name"`
		Kind         string `db:"kind"`
		TrainingYear int    `db:"training_year"`
		RoleTags     string `db:"role_tags"`
		Procedures   bool   `db:"procedures"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, kind, training_year, role_tags, procedures FROM persons WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: person %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get person: %w", err)
	}
	p := domain.Person{
		ID:           row.ID,
		Name:         row.Name,
		Kind:         domain.PersonKind(row.Kind),
		TrainingYear: domain.TrainingYear(row.TrainingYear),
		RoleTags:     splitTags(row.RoleTags),
		Procedures:   row.Procedures,
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context) ([]domain.Person, error) {
	var rows []struct {
		ID           string `db:"id"`
		Name         string `db:"name"`
		Kind         string `db:"kind"`
		TrainingYear int    `db:"training_year"`
		RoleTags     string `db:"role_tags"`
		Procedures   bool   `db:"procedures"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, kind, training_year, role_tags, procedures FROM persons ORDER BY id`); err != nil {
		return nil, fmt.Errorf("postgres: list persons: %w", err)
	}
	out := make([]domain.Person, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Person{
			ID:           r.ID,
			Name:         r.Name,
			Kind:         domain.PersonKind(r.Kind),
			TrainingYear: domain.TrainingYear(r.TrainingYear),
			RoleTags:     splitTags(r.RoleTags),
			Procedures:   r.Procedures,
		})
	}
	return out, nil
}

func (s *Store) UpsertPerson(ctx context.Context, p domain.Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, kind, training_year, role_tags, procedures)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, kind = EXCLUDED.kind,
			training_year = EXCLUDED.training_year,
			role_tags = EXCLUDED.role_tags, procedures = EXCLUDED.procedures`,
		p.ID, p.Name, string(p.Kind), int(p.TrainingYear), joinTags(p.RoleTags), p.Procedures)
	if err != nil {
		return fmt.Errorf("postgres: upsert person: %w", err)
	}
	return nil
}

func (s *Store) GetBlock(ctx context.Context, id string) (*domain.Block, error) {
	var row struct {
		ID          string    `db:"id"`
		Date        time.Time `db:"date"`
		Session     string    `db:"session"`
		BlockNumber int       `db:"block_number"`
		Weekend     bool      `db:"weekend"`
		Holiday     bool      `db:"holiday"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, date, session, block_number, weekend, holiday FROM blocks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: block %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get block: %w", err)
	}
	b := domain.Block{
		ID: row.ID, Date: row.Date, Session: domain.Session(row.Session),
		BlockNumber: row.BlockNumber, Weekend: row.Weekend, Holiday: row.Holiday,
	}
	return &b, nil
}

func (s *Store) ListBlocksByDateRange(ctx context.Context, start, end time.Time) ([]domain.Block, error) {
	var rows []struct {
		ID          string    `db:"id"`
		Date        time.Time `db:"date"`
		Session     string    `db:"session"`
		BlockNumber int       `db:"block_number"`
		Weekend     bool      `db:"weekend"`
		Holiday     bool      `db:"holiday"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, date, session, block_number, weekend, holiday FROM blocks
		WHERE date BETWEEN $1 AND $2 ORDER BY date, session`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocks: %w", err)
	}
	out := make([]domain.Block, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Block{
			ID: r.ID, Date: r.Date, Session: domain.Session(r.Session),
			BlockNumber: r.BlockNumber, Weekend: r.Weekend, Holiday: r.Holiday,
		})
	}
	return out, nil
}

func (s *Store) UpsertBlock(ctx context.Context, b domain.Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (id, date, session, block_number, weekend, holiday)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date, session = EXCLUDED.session,
			block_number = EXCLUDED.block_number, weekend = EXCLUDED.weekend, holiday = EXCLUDED.holiday`,
		b.ID, b.Date, string(b.Session), b.BlockNumber, b.Weekend, b.Holiday)
	if err != nil {
		return fmt.Errorf("postgres: upsert block: %w", err)
	}
	return nil
}

func (s *Store) GetRotationTemplate(ctx context.Context, id string) (*domain.RotationTemplate, error) {
	var row struct {
		ID                  string `db:"id"`
		Name                string `db:"name"`
		Type                string `db:"type"`
		SupervisionRequired bool   `db:"supervision_required"`
		MaxResidents        int    `db:"max_residents"`
		Intensive           bool   `db:"intensive"`
		Version             int    `db:"version"`
		Archived            bool   `db:"archived"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, type, supervision_required, max_residents, intensive, version, archived
		FROM rotation_templates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: rotation template %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get rotation template: %w", err)
	}
	t := domain.RotationTemplate{
		ID: row.ID, Name: row.Name, Type: domain.RotationType(row.Type),
		SupervisionRequired: row.SupervisionRequired, MaxResidents: row.MaxResidents,
		Intensive: row.Intensive, Version: row.Version, Archived: row.Archived,
	}
	return &t, nil
}

func (s *Store) ListRotationTemplates(ctx context.Context) ([]domain.RotationTemplate, error) {
	var rows []struct {
		ID                  string `db:"id"`
		Name                string `db:"name"`
		Type                string `db:"type"`
		SupervisionRequired bool   `db:"supervision_required"`
		MaxResidents        int    `db:"max_residents"`
		Intensive           bool   `db:"intensive"`
		Version             int    `db:"version"`
		Archived            bool   `db:"archived"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, type, supervision_required, max_residents, intensive, version, archived
		FROM rotation_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rotation templates: %w", err)
	}
	out := make([]domain.RotationTemplate, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.RotationTemplate{
			ID: r.ID, Name: r.Name, Type: domain.RotationType(r.Type),
			SupervisionRequired: r.SupervisionRequired, MaxResidents: r.MaxResidents,
			Intensive: r.Intensive, Version: r.Version, Archived: r.Archived,
		})
	}
	return out, nil
}

func (s *Store) UpsertRotationTemplate(ctx context.Context, t domain.RotationTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rotation_templates (id, name, type, supervision_required, max_residents, intensive, version, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type,
			supervision_required = EXCLUDED.supervision_required,
			max_residents = EXCLUDED.max_residents, intensive = EXCLUDED.intensive,
			version = EXCLUDED.version, archived = EXCLUDED.archived`,
		t.ID, t.Name, string(t.Type), t.SupervisionRequired, t.MaxResidents, t.Intensive, t.Version, t.Archived)
	if err != nil {
		return fmt.Errorf("postgres: upsert rotation template: %w", err)
	}
	return nil
}

func (s *Store) ListAssignmentsByDateRange(ctx context.Context, start, end time.Time) ([]domain.Assignment, error) {
	var rows []struct {
		BlockID            string `db:"block_id"`
		PersonID           string `db:"person_id"`
		RotationTemplateID string `db:"rotation_template_id"`
		Role               string `db:"role"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.block_id, a.person_id, COALESCE(a.rotation_template_id, '') AS rotation_template_id, a.role
		FROM assignments a JOIN blocks b ON b.id = a.block_id
		WHERE b.date BETWEEN $1 AND $2 ORDER BY a.block_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assignments by date range: %w", err)
	}
	return toAssignments(rows), nil
}

func (s *Store) ListAssignmentsByPerson(ctx context.Context, personID string) ([]domain.Assignment, error) {
	var rows []struct {
		BlockID            string `db:"block_id"`
		PersonID           string `db:"person_id"`
		RotationTemplateID string `db:"rotation_template_id"`
		Role               string `db:"role"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT block_id, person_id, COALESCE(rotation_template_id, '') AS rotation_template_id, role
		FROM assignments WHERE person_id = $1 ORDER BY block_id`, personID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assignments by person: %w", err)
	}
	return toAssignments(rows), nil
}

func toAssignments(rows []struct {
	BlockID            string `db:"block_id"`
	PersonID           string `db:"person_id"`
	RotationTemplateID string `db:"rotation_template_id"`
	Role               string `db:"role"`
}) []domain.Assignment {
	out := make([]domain.Assignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Assignment{
			BlockID: r.BlockID, PersonID: r.PersonID,
			RotationTemplateID: r.RotationTemplateID, Role: domain.AssignmentRole(r.Role),
		})
	}
	return out
}

// ReplaceAssignment applies old -> new inside one transaction, gated by
// block_versions.version = expectedVersion. A version mismatch returns
// mutation.ErrMutationConflict so pkg/mutation's retry loop can match it
// with errors.Is. old need not already have a row — a block's first
// assignment is written the same way, against the implicit version 0.
func (s *Store) ReplaceAssignment(ctx context.Context, old, new domain.Assignment, expectedVersion int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin replace assignment: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.GetContext(ctx, &version, `SELECT version FROM block_versions WHERE block_id = $1 FOR UPDATE`, old.BlockID)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
	} else if err != nil {
		return fmt.Errorf("postgres: read block version: %w", err)
	}
	if version != expectedVersion {
		return mutation.ErrMutationConflict
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM assignments WHERE block_id = $1 AND person_id = $2`, old.BlockID, old.PersonID)
	if err != nil {
		return fmt.Errorf("postgres: delete old assignment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (block_id, person_id, rotation_template_id, role)
		VALUES ($1, $2, NULLIF($3, ''), $4)`,
		new.BlockID, new.PersonID, new.RotationTemplateID, string(new.Role))
	if err != nil {
		return fmt.Errorf("postgres: insert new assignment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO block_versions (block_id, version) VALUES ($1, 1)
		ON CONFLICT (block_id) DO UPDATE SET version = block_versions.version + 1`, old.BlockID)
	if err != nil {
		return fmt.Errorf("postgres: bump block version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit replace assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAbsencesByPerson(ctx context.Context, personID string) ([]domain.Absence, error) {
	var rows []absenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, person_id, start_date, end_date, kind, blocking_override, tentative_return
		FROM absences WHERE person_id = $1 ORDER BY start_date`, personID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list absences by person: %w", err)
	}
	return toAbsences(rows), nil
}

func (s *Store) ListAbsencesByDateRange(ctx context.Context, start, end time.Time) ([]domain.Absence, error) {
	var rows []absenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, person_id, start_date, end_date, kind, blocking_override, tentative_return
		FROM absences WHERE end_date >= $1 AND start_date <= $2 ORDER BY start_date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: list absences by date range: %w", err)
	}
	return toAbsences(rows), nil
}

type absenceRow struct {
	ID               string    `db:"id"`
	PersonID         string    `db:"person_id"`
	Start            time.Time `db:"start_date"`
	End              time.Time `db:"end_date"`
	Kind             string    `db:"kind"`
	BlockingOverride *bool     `db:"blocking_override"`
	TentativeReturn  bool      `db:"tentative_return"`
}

func toAbsences(rows []absenceRow) []domain.Absence {
	out := make([]domain.Absence, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Absence{
			ID: r.ID, PersonID: r.PersonID, Start: r.Start, End: r.End,
			Kind: domain.AbsenceKind(r.Kind), BlockingOverride: r.BlockingOverride,
			TentativeReturn: r.TentativeReturn,
		})
	}
	return out
}

func (s *Store) UpsertAbsence(ctx context.Context, a domain.Absence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (id, person_id, start_date, end_date, kind, blocking_override, tentative_return)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			person_id = EXCLUDED.person_id, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, kind = EXCLUDED.kind,
			blocking_override = EXCLUDED.blocking_override, tentative_return = EXCLUDED.tentative_return`,
		a.ID, a.PersonID, a.Start, a.End, string(a.Kind), a.BlockingOverride, a.TentativeReturn)
	if err != nil {
		return fmt.Errorf("postgres: upsert absence: %w", err)
	}
	return nil
}

func (s *Store) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	var row swapRow
	err := s.db.GetContext(ctx, &row, swapSelect+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: swap %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get swap: %w", err)
	}
	sw := row.toDomain()
	return &sw, nil
}

func (s *Store) ListPendingSwapsByPerson(ctx context.Context, personID string) ([]domain.Swap, error) {
	var rows []swapRow
	err := s.db.SelectContext(ctx, &rows,
		swapSelect+` WHERE status = 'pending' AND (source_person_id = $1 OR target_person_id = $1) ORDER BY created_at`, personID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending swaps by person: %w", err)
	}
	return toSwaps(rows), nil
}

func (s *Store) ListPendingSwaps(ctx context.Context) ([]domain.Swap, error) {
	var rows []swapRow
	err := s.db.SelectContext(ctx, &rows, swapSelect+` WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending swaps: %w", err)
	}
	return toSwaps(rows), nil
}

const swapSelect = `SELECT id, source_person_id, source_week, target_person_id, target_week,
	kind, status, created_at, approved_at, executed_at, rollback_deadline, rolled_back_at FROM swaps`

type swapRow struct {
	ID               string     `db:"id"`
	SourcePersonID   string     `db:"source_person_id"`
	SourceWeek       time.Time  `db:"source_week"`
	TargetPersonID   string     `db:"target_person_id"`
	TargetWeek       time.Time  `db:"target_week"`
	Kind             string     `db:"kind"`
	Status           string     `db:"status"`
	CreatedAt        time.Time  `db:"created_at"`
	ApprovedAt       *time.Time `db:"approved_at"`
	ExecutedAt       *time.Time `db:"executed_at"`
	RollbackDeadline *time.Time `db:"rollback_deadline"`
	RolledBackAt     *time.Time `db:"rolled_back_at"`
}

func (r swapRow) toDomain() domain.Swap {
	return domain.Swap{
		ID: r.ID, SourcePersonID: r.SourcePersonID, SourceWeek: r.SourceWeek,
		TargetPersonID: r.TargetPersonID, TargetWeek: r.TargetWeek,
		Kind: domain.SwapKind(r.Kind), Status: domain.SwapStatus(r.Status),
		CreatedAt: r.CreatedAt, ApprovedAt: r.ApprovedAt, ExecutedAt: r.ExecutedAt,
		RollbackDeadline: r.RollbackDeadline, RolledBackAt: r.RolledBackAt,
	}
}

func toSwaps(rows []swapRow) []domain.Swap {
	out := make([]domain.Swap, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func (s *Store) UpsertSwap(ctx context.Context, sw domain.Swap) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swaps (id, source_person_id, source_week, target_person_id, target_week,
			kind, status, created_at, approved_at, executed_at, rollback_deadline, rolled_back_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, approved_at = EXCLUDED.approved_at,
			executed_at = EXCLUDED.executed_at, rollback_deadline = EXCLUDED.rollback_deadline,
			rolled_back_at = EXCLUDED.rolled_back_at`,
		sw.ID, sw.SourcePersonID, sw.SourceWeek, sw.TargetPersonID, sw.TargetWeek,
		string(sw.Kind), string(sw.Status), sw.CreatedAt, sw.ApprovedAt, sw.ExecutedAt,
		sw.RollbackDeadline, sw.RolledBackAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert swap: %w", err)
	}
	return nil
}
