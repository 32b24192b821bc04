package database

import (
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	appfs "github.com/trezcool/gradebook/fs"
	dummydb "github.com/trezcool/gradebook/storage/database/dummy"
	sqlxrepos "github.com/trezcool/gradebook/storage/database/sqlx"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// driverName maps a storage backend to its database/sql driver.
func driverName(backend string) (string, error) {
	switch backend {
	case core.StorageSQLite:
		return "sqlite", nil
	case core.StoragePostgres:
		return "postgres", nil
	case core.StoragePgx:
		return "pgx", nil
	}
	return "", errors.Errorf("unsupported SQL storage backend %q", backend)
}

// gooseDialect maps a storage backend to its goose dialect.
func gooseDialect(backend string) string {
	if backend == core.StorageSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func postgresURL(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLitePath resolves the database file of the sqlite backend, relative to the working dir.
func SQLitePath(conf *core.Config) string {
	if filepath.IsAbs(conf.Database.Path) {
		return conf.Database.Path
	}
	return filepath.Join(conf.WorkDir, conf.Database.Path)
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	driver, err := driverName(conf.Storage.Backend)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		path := SQLitePath(conf)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating database directory")
		}
		return sqlx.Open(driver, sqliteDSN(path))
	}
	return sqlx.Open(driver, postgresURL(dbName, admin, conf))
}

// Open connects to the SQL database of the configured backend and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Storage.Backend == core.StorageSQLite {
		// a single writer avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (creating it if needed) a sqlite database file. ":memory:" is accepted.
func OpenSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := db.QueryRowx(db.Rebind(query), args...).Scan(&found); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return found, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user and database of the postgres backends.
// sqlite files are created on open, so there is nothing to do for them.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Storage.Backend == core.StorageSQLite {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// PrepareGoose points goose at the embedded migrations, for the dialect of backend.
func PrepareGoose(backend string) error {
	goose.SetBaseFS(appfs.FS)
	return goose.SetDialect(gooseDialect(backend))
}

func Migrate(db *sql.DB, backend string) error {
	if err := PrepareGoose(backend); err != nil {
		return errors.Wrap(err, "preparing migrations")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// NewRepository opens the persistence variant selected by conf.Storage.Backend.
// The returned closer releases its resources.
func NewRepository(conf *core.Config, logger core.Logger) (gradebook.Repository, io.Closer, error) {
	switch conf.Storage.Backend {
	case core.StorageMemory:
		db, err := dummydb.Open()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using in-memory storage: data is lost on exit")
		return dummydb.NewGradebookRepository(db), io.NopCloser(nil), nil

	case core.StorageSQLite, core.StoragePostgres, core.StoragePgx:
		if err := CreateIfNotExist(conf); err != nil {
			return nil, nil, err
		}
		db, err := Open(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = Migrate(db.DB, conf.Storage.Backend); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info(fmt.Sprintf("using %s storage", conf.Storage.Backend))
		return sqlxrepos.NewGradebookRepository(db), db, nil
	}
	return nil, nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
}
