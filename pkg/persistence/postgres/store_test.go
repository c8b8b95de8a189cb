package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/mutation"
	"github.com/dutyroster/scheduler-core/pkg/persistence/postgres"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		db    *sqlx.DB
		mock  sqlmock.Sqlmock
		store *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()

		mockDB, mockSQL, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		db = sqlx.NewDb(mockDB, "sqlmock")
		mock = mockSQL

		log := logrus.New()
		log.SetOutput(GinkgoWriter)
		store = postgres.New(db, log)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("fetches a person by id", func() {
		rows := sqlmock.NewRows([]string{"id", "name", "kind", "training_year", "role_tags", "procedures"}).
			AddRow("p1", "Dr. Rivera", "resident", 2, "night_float,icu", true)
		mock.ExpectQuery(`SELECT id, name, kind, training_year, role_tags, procedures FROM persons WHERE id = \$1`).
			WithArgs("p1").WillReturnRows(rows)

		p, err := store.GetPerson(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Dr. Rivera"))
		Expect(p.TrainingYear).To(Equal(domain.PGY2))
		Expect(p.RoleTags).To(Equal([]string{"night_float", "icu"}))
	})

	It("returns an error when a person is missing", func() {
		mock.ExpectQuery(`SELECT id, name, kind, training_year, role_tags, procedures FROM persons WHERE id = \$1`).
			WithArgs("missing").WillReturnError(sql_errNoRows())

		_, err := store.GetPerson(ctx, "missing")
		Expect(err).To(HaveOccurred())
	})

	It("upserts a person", func() {
		mock.ExpectExec(`INSERT INTO persons`).
			WithArgs("p1", "Dr. Rivera", "resident", 2, "icu", true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.UpsertPerson(ctx, domain.Person{
			ID: "p1", Name: "Dr. Rivera", Kind: domain.PersonKindResident,
			TrainingYear: domain.PGY2, RoleTags: []string{"icu"}, Procedures: true,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("replaces an assignment inside a transaction when versions match", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT version FROM block_versions WHERE block_id = \$1 FOR UPDATE`).
			WithArgs("blk-1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
		mock.ExpectExec(`DELETE FROM assignments`).
			WithArgs("blk-1", "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO assignments`).
			WithArgs("blk-1", "bob", "", "primary").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO block_versions`).
			WithArgs("blk-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.ReplaceAssignment(ctx,
			domain.Assignment{BlockID: "blk-1", PersonID: "alice"},
			domain.Assignment{BlockID: "blk-1", PersonID: "bob", Role: domain.RolePrimary},
			3)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rolls back and reports a conflict on a version mismatch", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT version FROM block_versions WHERE block_id = \$1 FOR UPDATE`).
			WithArgs("blk-1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
		mock.ExpectRollback()

		err := store.ReplaceAssignment(ctx,
			domain.Assignment{BlockID: "blk-1", PersonID: "alice"},
			domain.Assignment{BlockID: "blk-1", PersonID: "bob"},
			3)
		Expect(err).To(MatchError(mutation.ErrMutationConflict))
	})

	It("lists blocks in a date range", func() {
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{"id", "date", "session", "block_number", "weekend", "holiday"}).
			AddRow("b1", start, "AM", 1, false, false)
		mock.ExpectQuery(`SELECT id, date, session, block_number, weekend, holiday FROM blocks`).
			WithArgs(start, end).WillReturnRows(rows)

		blocks, err := store.ListBlocksByDateRange(ctx, start, end)
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(HaveLen(1))
		Expect(blocks[0].ID).To(Equal("b1"))
	})
})

func sql_errNoRows() error {
	return errNoRows
}

var errNoRows = errors.New("sql: no rows in result set")
