package main

import (
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/storage/database"
)

var (
	gooseRunFunc = goose.Run // mockable

	errMemoryStorage = errors.New("the memory storage backend has no migrations")
)

func (cli *commandLine) migrate(args []string) error {
	backend := cli.conf.Storage.Backend
	if backend == core.StorageMemory {
		return errMemoryStorage
	}
	if err := database.CreateIfNotExist(cli.conf); err != nil {
		return err
	}
	if err := database.PrepareGoose(backend); err != nil {
		return errors.Wrap(err, "preparing migrations")
	}

	db, err := database.Open(cli.conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return gooseRunFunc(args[0], db.DB, "migrations", args[1:]...)
}
