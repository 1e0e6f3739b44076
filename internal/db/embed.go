package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// getMigrationsFS returns the embedded migration files as a filesystem
// rooted at the .sql files themselves.
func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(embeddedMigrations, "migrations")
}

// MigrationsFS exposes the embedded migrations for callers outside the
// package, like the daemon's startup version check.
func MigrationsFS() (fs.FS, error) {
	return getMigrationsFS()
}
