package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

// RunRepositoryTests checks the behaviour every gradebook.Repository variant shares.
// newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) gradebook.Repository) {
	ctx := context.Background()

	t.Run("catalog", func(t *testing.T) {
		repo := newRepo(t)
		SeedCatalog(t, repo)
		SeedCatalog(t, repo) // idempotent

		cat, err := repo.QueryCatalog(ctx)
		require.NoError(t, err)
		assert.Len(t, cat.Classes, 6)
		assert.Len(t, cat.Subjects, 4)
		assert.Len(t, cat.Terms, 3)

		renamed := gradebook.Catalog{Terms: []gradebook.CatalogItem{{ID: "term_1", Name: "First Term"}}}
		require.NoError(t, repo.UpsertCatalog(ctx, renamed))
		cat, err = repo.QueryCatalog(ctx)
		require.NoError(t, err)
		assert.Equal(t, "First Term", cat.NameOf(gradebook.KindTerm, "term_1"))
	})

	t.Run("configuration", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetConfiguration(ctx, Triple)
		assert.ErrorIs(t, err, gradebook.ErrNotFound)

		first := SaveConfig(t, repo, Triple, 50, 10, 20)
		conf, err := repo.GetConfiguration(ctx, Triple)
		require.NoError(t, err)
		assert.Equal(t, first.ID, conf.ID)
		assert.Equal(t, Triple, conf.Triple)
		assert.Equal(t, 50.0, conf.TestMarkedOver)
		assert.Equal(t, 10.0, conf.MaxAddedMark)
		assert.Equal(t, 20.0, conf.TestContribution)

		// upsert by triple keeps the first id
		second := SaveConfig(t, repo, Triple, 80, 5, 10)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 80.0, second.TestMarkedOver)
	})

	t.Run("marks", func(t *testing.T) {
		repo := newRepo(t)
		ada := CreateStudent(t, repo, "Ada Obi", Triple.ClassID)
		ben := CreateStudent(t, repo, "Ben Eze", Triple.ClassID)

		first := SaveMark(t, repo, Triple, ada.ID, 40, Float(5))
		SaveMark(t, repo, Triple, ben.ID, 30, nil)
		other := Triple
		other.TermID = "term_2"
		SaveMark(t, repo, other, ada.ID, 99, nil)

		updated := SaveMark(t, repo, Triple, ada.ID, 45, nil)
		assert.NotEqual(t, first.ID, updated.ID)

		marks, err := repo.GetMarks(ctx, Triple)
		require.NoError(t, err)
		require.Len(t, marks, 2)
		byStudent := map[string]gradebook.Mark{}
		for _, m := range marks {
			byStudent[m.StudentID] = m
		}
		assert.Equal(t, first.ID, byStudent[ada.ID].ID)
		assert.Equal(t, 45.0, byStudent[ada.ID].RawScore)
		assert.False(t, byStudent[ada.ID].AddedMark.Valid)
		assert.Equal(t, 30.0, byStudent[ben.ID].RawScore)
	})

	t.Run("students", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now().UTC().Truncate(time.Second)
		zara := CreateStudent(t, repo, "zara Musa", "cls_1_101", now.Add(-time.Hour))
		ada := CreateStudent(t, repo, "Ada Obi", "cls_1_101", now)
		CreateStudent(t, repo, "Ben Eze", "cls_1_102", now.Add(-2*time.Hour))
		CreateStudent(t, repo, "Kim_Lee", "cls_2_101", now.Add(-3*time.Hour))

		got, err := repo.GetStudentByID(ctx, ada.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Obi", got.Name)
		assert.True(t, got.CreatedAt.Equal(now))

		_, err = repo.GetStudentByID(ctx, "nobody")
		assert.ErrorIs(t, err, gradebook.ErrStudentNotFound)

		tests := []struct {
			name   string
			filter gradebook.StudentFilter
			ords   []core.DBOrdering
			want   []string
		}{
			{name: "all, by name", want: []string{"Ada Obi", "Ben Eze", "Kim_Lee", "zara Musa"}},
			{name: "class", filter: gradebook.StudentFilter{ClassID: "cls_1_101"}, want: []string{"Ada Obi", "zara Musa"}},
			{name: "search", filter: gradebook.StudentFilter{Search: "mus"}, want: []string{"zara Musa"}},
			{name: "search is case-insensitive", filter: gradebook.StudentFilter{Search: "MUS"}, want: []string{"zara Musa"}},
			{name: "search: underscore is literal", filter: gradebook.StudentFilter{Search: "_"}, want: []string{"Kim_Lee"}},
			{name: "search: underscore is not a wildcard", filter: gradebook.StudentFilter{Search: "m_s"}, want: []string{}},
			{name: "search: percent is literal", filter: gradebook.StudentFilter{Search: "%"}, want: []string{}},
			{name: "newest first", ords: []core.DBOrdering{{Field: "created_at"}}, want: []string{"Ada Obi", "zara Musa", "Ben Eze", "Kim_Lee"}},
			{name: "unknown ordering ignored", ords: []core.DBOrdering{{Field: "gender; DROP TABLE students"}}, want: []string{"Ada Obi", "Ben Eze", "Kim_Lee", "zara Musa"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				students, err := repo.FilterStudents(ctx, tt.filter, tt.ords...)
				require.NoError(t, err)
				assert.Equal(t, tt.want, gradebook.StudentNames(students))
			})
		}

		zara.Name = "Zara Musa"
		zara.ClassID = "cls_1_102"
		zara.UpdatedAt = now.Add(time.Minute)
		updated, err := repo.UpdateStudent(ctx, zara)
		require.NoError(t, err)
		assert.Equal(t, "Zara Musa", updated.Name)
		assert.Equal(t, "cls_1_102", updated.ClassID)

		_, err = repo.UpdateStudent(ctx, gradebook.Student{ID: "nobody", Name: "No Body"})
		assert.ErrorIs(t, err, gradebook.ErrStudentNotFound)
	})

	t.Run("deleting students deletes their marks", func(t *testing.T) {
		repo := newRepo(t)
		ada := CreateStudent(t, repo, "Ada Obi", "cls_1_101")
		ben := CreateStudent(t, repo, "Ben Eze", "cls_1_101")
		CreateStudent(t, repo, "Chidi Okafor", "cls_1_102")
		SaveMark(t, repo, Triple, ada.ID, 10, nil)
		SaveMark(t, repo, Triple, ben.ID, 20, nil)

		require.NoError(t, repo.DeleteStudentsByID(ctx, ada.ID))
		marks, err := repo.GetMarks(ctx, Triple)
		require.NoError(t, err)
		require.Len(t, marks, 1)
		assert.Equal(t, ben.ID, marks[0].StudentID)

		n, err := repo.DeleteStudentsByClass(ctx, "cls_1_101")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		marks, err = repo.GetMarks(ctx, Triple)
		require.NoError(t, err)
		assert.Empty(t, marks)

		left, err := repo.FilterStudents(ctx, gradebook.StudentFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Chidi Okafor"}, gradebook.StudentNames(left))
	})
}
