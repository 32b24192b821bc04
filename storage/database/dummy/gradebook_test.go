package dummydb_test

import (
	"testing"

	"github.com/trezcool/gradebook/core/gradebook"
	dummydb "github.com/trezcool/gradebook/storage/database/dummy"
	"github.com/trezcool/gradebook/tests"
)

func TestGradebookRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) gradebook.Repository {
		db, err := dummydb.Open()
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		return dummydb.NewGradebookRepository(db)
	})
}
