package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

var allowedOrderings = []string{"name", "created_at", "updated_at"}

type (
	configRow struct {
		ID               string    `db:"id"`
		ClassID          string    `db:"class_id"`
		SubjectID        string    `db:"subject_id"`
		TermID           string    `db:"term_id"`
		TestMarkedOver   float64   `db:"test_marked_over"`
		MaxAddedMark     float64   `db:"max_added_mark"`
		TestContribution float64   `db:"test_contribution"`
		UpdatedAt        time.Time `db:"updated_at"`
	}

	markRow struct {
		ID        string       `db:"id"`
		StudentID string       `db:"student_id"`
		ClassID   string       `db:"class_id"`
		SubjectID string       `db:"subject_id"`
		TermID    string       `db:"term_id"`
		RawScore  float64      `db:"raw_score"`
		AddedMark null.Float64 `db:"added_mark"`
		UpdatedAt time.Time    `db:"updated_at"`
	}

	studentRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Gender    string    `db:"gender"`
		ClassID   string    `db:"class_id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

func (r configRow) toModel() gradebook.ScoreConfig {
	return gradebook.ScoreConfig{
		ID:               r.ID,
		Triple:           gradebook.Triple{ClassID: r.ClassID, SubjectID: r.SubjectID, TermID: r.TermID},
		TestMarkedOver:   r.TestMarkedOver,
		MaxAddedMark:     r.MaxAddedMark,
		TestContribution: r.TestContribution,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r markRow) toModel() gradebook.Mark {
	return gradebook.Mark{
		ID:        r.ID,
		StudentID: r.StudentID,
		Triple:    gradebook.Triple{ClassID: r.ClassID, SubjectID: r.SubjectID, TermID: r.TermID},
		RawScore:  r.RawScore,
		AddedMark: r.AddedMark,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r studentRow) toModel() gradebook.Student {
	return gradebook.Student{
		ID:        r.ID,
		Name:      r.Name,
		Gender:    r.Gender,
		ClassID:   r.ClassID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type gradebookRepository struct {
	db *sqlx.DB
}

var _ gradebook.Repository = (*gradebookRepository)(nil) // interface compliance check

// NewGradebookRepository works on postgres (lib/pq & pgx) and sqlite databases.
// Queries are written with '?' placeholders and rebound for the driver.
func NewGradebookRepository(db *sqlx.DB) gradebook.Repository {
	return &gradebookRepository{db: db}
}

// withTx runs fn in a transaction, committed only if fn succeeds.
func (repo *gradebookRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *gradebookRepository) QueryCatalog(ctx context.Context) (gradebook.Catalog, error) {
	var cat gradebook.Catalog
	for _, q := range []struct {
		dest  *[]gradebook.CatalogItem
		table string
	}{
		{&cat.Classes, "classes"},
		{&cat.Subjects, "subjects"},
		{&cat.Terms, "terms"},
	} {
		*q.dest = make([]gradebook.CatalogItem, 0)
		if err := repo.db.SelectContext(ctx, q.dest, "SELECT id, name FROM "+q.table+" ORDER BY id"); err != nil {
			return gradebook.Catalog{}, errors.Wrapf(err, "querying %s", q.table)
		}
	}
	return cat, nil
}

func (repo *gradebookRepository) UpsertCatalog(ctx context.Context, cat gradebook.Catalog) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		for table, items := range map[string][]gradebook.CatalogItem{
			"classes":  cat.Classes,
			"subjects": cat.Subjects,
			"terms":    cat.Terms,
		} {
			q := tx.Rebind("INSERT INTO " + table + " (id, name) VALUES (?, ?) " +
				"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
			for _, it := range items {
				if _, err := tx.ExecContext(ctx, q, it.ID, it.Name); err != nil {
					return errors.Wrapf(err, "upserting %s", table)
				}
			}
		}
		return nil
	})
}

func (repo *gradebookRepository) GetConfiguration(ctx context.Context, t gradebook.Triple) (gradebook.ScoreConfig, error) {
	var row configRow
	q := repo.db.Rebind(`
		SELECT id, class_id, subject_id, term_id, test_marked_over, max_added_mark, test_contribution, updated_at
		FROM score_configs
		WHERE class_id = ? AND subject_id = ? AND term_id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, t.ClassID, t.SubjectID, t.TermID); err != nil {
		if err == sql.ErrNoRows {
			return gradebook.ScoreConfig{}, gradebook.ErrNotFound
		}
		return gradebook.ScoreConfig{}, errors.Wrap(err, "querying configuration")
	}
	return row.toModel(), nil
}

func (repo *gradebookRepository) SaveConfiguration(ctx context.Context, conf gradebook.ScoreConfig) (gradebook.ScoreConfig, error) {
	q := repo.db.Rebind(`
		INSERT INTO score_configs (id, class_id, subject_id, term_id, test_marked_over, max_added_mark, test_contribution, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (class_id, subject_id, term_id) DO UPDATE SET
			test_marked_over = EXCLUDED.test_marked_over,
			max_added_mark = EXCLUDED.max_added_mark,
			test_contribution = EXCLUDED.test_contribution,
			updated_at = EXCLUDED.updated_at`)
	_, err := repo.db.ExecContext(ctx, q,
		conf.ID, conf.ClassID, conf.SubjectID, conf.TermID,
		conf.TestMarkedOver, conf.MaxAddedMark, conf.TestContribution, conf.UpdatedAt,
	)
	if err != nil {
		return gradebook.ScoreConfig{}, errors.Wrap(err, "saving configuration")
	}
	return repo.GetConfiguration(ctx, conf.Triple)
}

func (repo *gradebookRepository) GetMarks(ctx context.Context, t gradebook.Triple) ([]gradebook.Mark, error) {
	var rows []markRow
	q := repo.db.Rebind(`
		SELECT id, student_id, class_id, subject_id, term_id, raw_score, added_mark, updated_at
		FROM marks
		WHERE class_id = ? AND subject_id = ? AND term_id = ?
		ORDER BY student_id`)
	if err := repo.db.SelectContext(ctx, &rows, q, t.ClassID, t.SubjectID, t.TermID); err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	marks := make([]gradebook.Mark, 0, len(rows))
	for _, r := range rows {
		marks = append(marks, r.toModel())
	}
	return marks, nil
}

func (repo *gradebookRepository) SaveMarks(ctx context.Context, marks ...gradebook.Mark) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`
			INSERT INTO marks (id, student_id, class_id, subject_id, term_id, raw_score, added_mark, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (student_id, class_id, subject_id, term_id) DO UPDATE SET
				raw_score = EXCLUDED.raw_score,
				added_mark = EXCLUDED.added_mark,
				updated_at = EXCLUDED.updated_at`)
		for _, m := range marks {
			_, err := tx.ExecContext(ctx, q,
				m.ID, m.StudentID, m.ClassID, m.SubjectID, m.TermID, m.RawScore, m.AddedMark, m.UpdatedAt,
			)
			if err != nil {
				return errors.Wrapf(err, "saving mark of student %s", m.StudentID)
			}
		}
		return nil
	})
}

func (repo *gradebookRepository) CreateStudents(ctx context.Context, students ...gradebook.Student) ([]gradebook.Student, error) {
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`
			INSERT INTO students (id, name, gender, class_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		for _, stu := range students {
			if _, err := tx.ExecContext(ctx, q, stu.ID, stu.Name, stu.Gender, stu.ClassID, stu.CreatedAt, stu.UpdatedAt); err != nil {
				return errors.Wrap(err, "creating student")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (repo *gradebookRepository) GetStudentByID(ctx context.Context, id string) (gradebook.Student, error) {
	var row studentRow
	q := repo.db.Rebind("SELECT id, name, gender, class_id, created_at, updated_at FROM students WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return gradebook.Student{}, gradebook.ErrStudentNotFound
		}
		return gradebook.Student{}, errors.Wrap(err, "querying student")
	}
	return row.toModel(), nil
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (repo *gradebookRepository) FilterStudents(ctx context.Context, filter gradebook.StudentFilter, ords ...core.DBOrdering) ([]gradebook.Student, error) {
	q := "SELECT id, name, gender, class_id, created_at, updated_at FROM students WHERE 1 = 1"
	var args []interface{}
	if filter.ClassID != "" {
		q += " AND class_id = ?"
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		q += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.Search))+"%")
	}
	q += " " + core.OrderByClause(core.CleanOrderings(ords, allowedOrderings...), "LOWER(name) ASC, id ASC")

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]gradebook.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toModel())
	}
	return students, nil
}

func (repo *gradebookRepository) UpdateStudent(ctx context.Context, stu gradebook.Student) (gradebook.Student, error) {
	q := repo.db.Rebind("UPDATE students SET name = ?, gender = ?, class_id = ?, updated_at = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q, stu.Name, stu.Gender, stu.ClassID, stu.UpdatedAt, stu.ID)
	if err != nil {
		return gradebook.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return gradebook.Student{}, gradebook.ErrStudentNotFound
	}
	return repo.GetStudentByID(ctx, stu.ID)
}

func (repo *gradebookRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			"DELETE FROM marks WHERE student_id IN (?)",
			"DELETE FROM students WHERE id IN (?)",
		} {
			query, args, err := sqlx.In(q, ids)
			if err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return errors.Wrap(err, "deleting students")
			}
		}
		return nil
	})
}

func (repo *gradebookRepository) DeleteStudentsByClass(ctx context.Context, classID string) (int, error) {
	var deleted int64
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind("DELETE FROM marks WHERE student_id IN (SELECT id FROM students WHERE class_id = ?)")
		if _, err := tx.ExecContext(ctx, q, classID); err != nil {
			return errors.Wrap(err, "deleting class marks")
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM students WHERE class_id = ?"), classID)
		if err != nil {
			return errors.Wrap(err, "deleting class students")
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}
