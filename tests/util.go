package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/storage/database"
)

var mailAddress = mail.Address{Name: "Gradebook", Address: "noreply@gradebook.test"}

// Triple of the seeded catalog used across tests.
var Triple = gradebook.Triple{ClassID: "cls_1_101", SubjectID: "subj_1", TermID: "term_1"}

// NewConfig returns a TEST config. Nothing is read from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Gradebook",
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		DefaultFromEmail: mailAddress,
		Storage:          core.StorageConfig{Backend: core.StorageMemory},
	}
}

// NewLogger returns a silent logger.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), NewConfig())
	logger.Enable(false)
	return logger
}

// PrepareSQLiteDB opens a migrated sqlite database in a temporary directory.
func PrepareSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("PrepareSQLiteDB() failed: %v", err)
	}
	if err = database.Migrate(db.DB, core.StorageSQLite); err != nil {
		t.Fatalf("PrepareSQLiteDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func SeedCatalog(t *testing.T, repo gradebook.Repository) {
	t.Helper()
	if err := repo.UpsertCatalog(context.Background(), gradebook.DefaultCatalog()); err != nil {
		t.Fatalf("SeedCatalog() failed: %v", err)
	}
}

func CreateStudent(t *testing.T, repo gradebook.Repository, name, classID string, createdAt ...time.Time) gradebook.Student {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	stu := gradebook.Student{
		ID:        uuid.NewString(),
		Name:      name,
		Gender:    "Female",
		ClassID:   classID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	students, err := repo.CreateStudents(context.Background(), stu)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return students[0]
}

func SaveConfig(t *testing.T, repo gradebook.Repository, triple gradebook.Triple, markedOver, maxAdded, contribution float64) gradebook.ScoreConfig {
	t.Helper()
	conf, err := repo.SaveConfiguration(context.Background(), gradebook.ScoreConfig{
		ID:               uuid.NewString(),
		Triple:           triple,
		TestMarkedOver:   markedOver,
		MaxAddedMark:     maxAdded,
		TestContribution: contribution,
		UpdatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		t.Fatalf("SaveConfig() failed: %v", err)
	}
	return conf
}

// SaveMark saves a mark; a nil added leaves the added mark unset.
func SaveMark(t *testing.T, repo gradebook.Repository, triple gradebook.Triple, studentID string, raw float64, added *float64) gradebook.Mark {
	t.Helper()
	mark := gradebook.Mark{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Triple:    triple,
		RawScore:  raw,
		AddedMark: null.Float64FromPtr(added),
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.SaveMarks(context.Background(), mark); err != nil {
		t.Fatalf("SaveMark() failed: %v", err)
	}
	return mark
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
