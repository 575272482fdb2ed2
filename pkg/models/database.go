package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	go_sqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SQLite result codes, see https://www.sqlite.org/rescode.html
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// Connect opens the SQLite database, migrates the schema and configures the
// connection pool.
//
// If the DSN does not contain any parameters, foreign keys are enabled and a
// busy timeout is set.
func Connect(dsn string) (*gorm.DB, error) {
	if !strings.Contains(dsn, "?") {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn)
	}

	config := &gorm.Config{
		// Set generated timestamps in UTC
		NowFunc: func() time.Time {
			return time.Now().In(time.UTC)
		},
		Logger: &logger{
			Logger: log.Logger,
		},
	}

	db, err := gorm.Open(sqlite.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database object: %w", err)
	}

	// Get new connections after one hour
	sqlDB.SetConnMaxLifetime(time.Hour)

	// SQLite has a single writer. With one connection, every unit of work
	// is serialized, which also prevents SQLITE_BUSY errors.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	err = registerCallbacks(db)
	if err != nil {
		return nil, err
	}

	err = Migrate(db)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate migrates all models to the schema defined in the code.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(User{}, Account{}, Transaction{}, Budget{})
	if err != nil {
		return fmt.Errorf("error during DB migration: %w", err)
	}

	return nil
}

func registerCallbacks(db *gorm.DB) error {
	callbacks := []struct {
		processor interface {
			Register(string, func(*gorm.DB)) error
		}
		name string
		fn   func(*gorm.DB)
	}{
		{db.Callback().Query().After("*"), "fintrack:after_query", queryCallback},
		{db.Callback().Query().After("*"), "fintrack:after_query_general", generalCallback},
		{db.Callback().Create().After("*"), "fintrack:after_create", createUpdateCallback},
		{db.Callback().Create().After("*"), "fintrack:after_create_general", generalCallback},
		{db.Callback().Update().After("*"), "fintrack:after_update", createUpdateCallback},
		{db.Callback().Update().After("*"), "fintrack:after_update_general", generalCallback},
		{db.Callback().Delete().After("*"), "fintrack:after_delete_general", generalCallback},
	}

	for _, c := range callbacks {
		if err := c.processor.Register(c.name, c.fn); err != nil {
			return fmt.Errorf("could not register callback %s: %w", c.name, err)
		}
	}

	return nil
}

var plural = regexp.MustCompile("ies$")

// queryCallback replaces the generic "no record" error with a more user
// friendly one
func queryCallback(db *gorm.DB) {
	if errors.Is(db.Error, gorm.ErrRecordNotFound) {
		// Use the table name as information about the type of resource
		name := strings.ReplaceAll(db.Statement.Table, "_", " ")
		name = plural.ReplaceAllString(name, "y")
		name = strings.TrimRight(name, "s")

		db.Error = fmt.Errorf("%w %s matching your query", ErrResourceNotFound, name)
	}
}

// createUpdateCallback inspects errors returned by the database for create
// and update calls and replaces them with user friendly ones
func createUpdateCallback(db *gorm.DB) {
	if db.Error == nil {
		return
	}

	if strings.Contains(db.Error.Error(), "UNIQUE constraint failed: users.identity_ref") {
		db.Error = ErrIdentityNotUnique
	}

	if strings.Contains(db.Error.Error(), "CHECK constraint failed: amount_not_negative") {
		db.Error = ErrNegativeAmount
	}
}

// generalCallback handles unspecified errors.
//
// Lock contention is reported as ErrConflict so that callers can retry.
// For all other driver errors, the error is logged and replaced with
// ErrGeneral.
func generalCallback(db *gorm.DB) {
	if db.Error == nil {
		return
	}

	var sqliteErr *go_sqlite.Error
	if errors.As(db.Error, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			db.Error = fmt.Errorf("%w: %s", ErrConflict, sqliteErr.Error())
			return
		}
	}

	// "sql: database is closed" is hard-coded in the sql module, see
	// https://cs.opensource.google/go/go/+/master:src/database/sql/sql.go;l=1298;drc=0d018b49e33b1383dc0ae5cc968e800dffeeaf7d
	if db.Error.Error() == "sql: database is closed" || sqliteErr != nil {
		log.Error().Msgf("%T: %v", db.Error, db.Error.Error())
		db.Error = ErrGeneral
	}
}
