package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

var allowedOrderings = []string{"name", "created_at", "updated_at"}

type gradebookRepository struct {
	db *DB
}

var _ gradebook.Repository = (*gradebookRepository)(nil) // interface compliance check

func NewGradebookRepository(db *DB) gradebook.Repository {
	return &gradebookRepository{db: db}
}

func (repo *gradebookRepository) QueryCatalog(_ context.Context) (gradebook.Catalog, error) {
	repo.db.catalog.RLock()
	defer repo.db.catalog.RUnlock()

	cat := repo.db.catalog.catalog
	return gradebook.Catalog{
		Classes:  append([]gradebook.CatalogItem{}, cat.Classes...),
		Subjects: append([]gradebook.CatalogItem{}, cat.Subjects...),
		Terms:    append([]gradebook.CatalogItem{}, cat.Terms...),
	}, nil
}

func (repo *gradebookRepository) UpsertCatalog(_ context.Context, cat gradebook.Catalog) error {
	repo.db.catalog.Lock()
	defer repo.db.catalog.Unlock()

	curr := &repo.db.catalog.catalog
	curr.Classes = upsertItems(curr.Classes, cat.Classes)
	curr.Subjects = upsertItems(curr.Subjects, cat.Subjects)
	curr.Terms = upsertItems(curr.Terms, cat.Terms)
	return nil
}

func upsertItems(items, upserts []gradebook.CatalogItem) []gradebook.CatalogItem {
outer:
	for _, up := range upserts {
		for i := range items {
			if items[i].ID == up.ID {
				items[i].Name = up.Name
				continue outer
			}
		}
		items = append(items, up)
	}
	return items
}

func (repo *gradebookRepository) GetConfiguration(_ context.Context, t gradebook.Triple) (gradebook.ScoreConfig, error) {
	repo.db.config.RLock()
	defer repo.db.config.RUnlock()

	if conf, ok := repo.db.config.table[t.String()]; ok {
		return *conf, nil
	}
	return gradebook.ScoreConfig{}, gradebook.ErrNotFound
}

func (repo *gradebookRepository) SaveConfiguration(_ context.Context, conf gradebook.ScoreConfig) (gradebook.ScoreConfig, error) {
	repo.db.config.Lock()
	defer repo.db.config.Unlock()

	if orig, ok := repo.db.config.table[conf.Triple.String()]; ok {
		conf.ID = orig.ID
	}
	repo.db.config.table[conf.Triple.String()] = &conf
	return conf, nil
}

func (repo *gradebookRepository) GetMarks(_ context.Context, t gradebook.Triple) ([]gradebook.Mark, error) {
	repo.db.mark.RLock()
	defer repo.db.mark.RUnlock()

	byStudent := repo.db.mark.table[t.String()]
	marks := make([]gradebook.Mark, 0, len(byStudent))
	for _, m := range byStudent {
		marks = append(marks, *m)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].StudentID < marks[j].StudentID })
	return marks, nil
}

func (repo *gradebookRepository) SaveMarks(_ context.Context, marks ...gradebook.Mark) error {
	repo.db.mark.Lock()
	defer repo.db.mark.Unlock()

	for i := range marks {
		m := marks[i]
		key := m.Triple.String()
		byStudent, ok := repo.db.mark.table[key]
		if !ok {
			byStudent = make(map[string]*gradebook.Mark)
			repo.db.mark.table[key] = byStudent
		}
		if orig, ok := byStudent[m.StudentID]; ok {
			m.ID = orig.ID
		}
		byStudent[m.StudentID] = &m
	}
	return nil
}

func (repo *gradebookRepository) CreateStudents(_ context.Context, students ...gradebook.Student) ([]gradebook.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	for i := range students {
		stu := students[i]
		repo.db.student.table[stu.ID] = &stu
	}
	return students, nil
}

func (repo *gradebookRepository) GetStudentByID(_ context.Context, id string) (gradebook.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	if stu, ok := repo.db.student.table[id]; ok {
		return *stu, nil
	}
	return gradebook.Student{}, gradebook.ErrStudentNotFound
}

func (repo *gradebookRepository) FilterStudents(_ context.Context, filter gradebook.StudentFilter, ords ...core.DBOrdering) ([]gradebook.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	search := strings.ToLower(filter.Search)
	students := make([]gradebook.Student, 0)
	for _, stu := range repo.db.student.table {
		if filter.ClassID != "" && stu.ClassID != filter.ClassID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(stu.Name), search) {
			continue
		}
		students = append(students, *stu)
	}

	ords = core.CleanOrderings(ords, allowedOrderings...)
	if len(ords) == 0 {
		ords = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range ords {
			if c := compareStudents(students[i], students[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func compareStudents(a, b gradebook.Student, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}

func (repo *gradebookRepository) UpdateStudent(_ context.Context, stu gradebook.Student) (gradebook.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	orig, ok := repo.db.student.table[stu.ID]
	if !ok {
		return gradebook.Student{}, gradebook.ErrStudentNotFound
	}
	orig.Name = stu.Name
	orig.Gender = stu.Gender
	orig.ClassID = stu.ClassID
	orig.UpdatedAt = stu.UpdatedAt
	return *orig, nil
}

func (repo *gradebookRepository) DeleteStudentsByID(_ context.Context, ids ...string) error {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	repo.deleteStudents(ids...)
	return nil
}

func (repo *gradebookRepository) DeleteStudentsByClass(_ context.Context, classID string) (int, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	var ids []string
	for _, stu := range repo.db.student.table {
		if stu.ClassID == classID {
			ids = append(ids, stu.ID)
		}
	}
	repo.deleteStudents(ids...)
	return len(ids), nil
}

// deleteStudents deletes students with their marks. Callers hold the student table lock.
func (repo *gradebookRepository) deleteStudents(ids ...string) {
	repo.db.mark.Lock()
	defer repo.db.mark.Unlock()

	for _, id := range ids {
		delete(repo.db.student.table, id)
		for _, byStudent := range repo.db.mark.table {
			delete(byStudent, id)
		}
	}
}
