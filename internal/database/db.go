package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultMaxOpenConns bounds each of the two pools.
const DefaultMaxOpenConns = 50

// Database holds two Postgres pools. SQL serves the session store, whose
// transactions keep a session row locked while messages are written. The
// embedded gorm.DB serves the active message tier and never borrows from SQL.
type Database struct {
	*gorm.DB
	SQL *sql.DB

	messages *sql.DB
}

type Options struct {
	MaxOpenConns int
}

func NewDatabase(databaseURL string) (*Database, error) {
	return Open(databaseURL, Options{MaxOpenConns: DefaultMaxOpenConns})
}

func Open(databaseURL string, opts Options) (*Database, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultMaxOpenConns
	}

	sessionsDB, err := openPool(databaseURL, opts.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	messagesDB, err := openPool(databaseURL, opts.MaxOpenConns)
	if err != nil {
		sessionsDB.Close()
		return nil, err
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: messagesDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		sessionsDB.Close()
		messagesDB.Close()
		return nil, fmt.Errorf("failed to open gorm on database: %w", err)
	}

	log.Println("Connected to database successfully")

	return &Database{DB: db, SQL: sessionsDB, messages: messagesDB}, nil
}

func openPool(databaseURL string, maxOpen int) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(min(10, maxOpen))

	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(maxOpen)

	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB, nil
}

// Migrate creates or updates the tables behind the given gorm models.
func (db *Database) Migrate(models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migration completed")
	return nil
}

func (db *Database) Close() error {
	err := db.SQL.Close()
	if mErr := db.messages.Close(); err == nil {
		err = mErr
	}
	return err
}
