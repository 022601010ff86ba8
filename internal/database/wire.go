package database

import (
	"database/sql"

	"github.com/google/wire"
	"gorm.io/gorm"
)

func ProvideSQL(db *Database) *sql.DB {
	return db.SQL
}

func ProvideGorm(db *Database) *gorm.DB {
	return db.DB
}

var Set = wire.NewSet(ProvideSQL, ProvideGorm)
