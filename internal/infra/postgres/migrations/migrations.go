// Package migrations holds the schema of the postgres adapters, applied with
// the bun migrator by the migrate and start commands.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
