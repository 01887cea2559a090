// Package migrations embeds the SQL schema for each supported driver so the
// binary carries its own schema.
package migrations

import "embed"

// SqliteMigrations holds sqlite/*.sql.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds postgres/*.sql.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
