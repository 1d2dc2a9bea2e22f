package migrate

import (
	_ "embed"
	"fmt"

	"gorm.io/gorm"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteSchema returns the DDL mirroring the Postgres migrations for SQLite,
// including the unique and partial unique indexes.
func SQLiteSchema() string {
	return sqliteSchema
}

// ApplySQLite creates every table on a SQLite connection. Statements are
// idempotent so it is safe to run on every boot.
func ApplySQLite(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.Exec(sqliteSchema).Error; err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
