package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound means an applied version has no file in the
	// embedded migrations.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownMigration means the latest migration cannot be rolled back.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
