// Package migrations embeds the SQL schema migrations applied by golang-migrate.
package migrations

import "embed"

// PostgresDir is the directory inside FS holding the postgres migrations
const PostgresDir = "postgres"

//go:embed postgres/*.sql
var FS embed.FS
