package dummydb

import (
	"sync"

	"github.com/trezcool/gradebook/core/gradebook"
)

type (
	DB struct {
		catalog *catalogTable
		config  *configTable
		mark    *markTable
		student *studentTable
	}

	catalogTable struct {
		sync.RWMutex
		catalog gradebook.Catalog
	}

	// config & mark tables are keyed by Triple.String()
	configTable struct {
		sync.RWMutex
		table map[string]*gradebook.ScoreConfig
	}

	markTable struct {
		sync.RWMutex
		table map[string]map[string]*gradebook.Mark // triple -> student id -> mark
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*gradebook.Student
	}
)

// Open returns an empty in-memory database. Nothing survives the process.
func Open() (*DB, error) {
	db := &DB{
		catalog: &catalogTable{},
		config:  &configTable{table: make(map[string]*gradebook.ScoreConfig)},
		mark:    &markTable{table: make(map[string]map[string]*gradebook.Mark)},
		student: &studentTable{table: make(map[string]*gradebook.Student)},
	}
	return db, nil
}
