// Package migrations embeds the target database schema.
package migrations

import "embed"

// Postgres holds the golang-migrate files for the relational sink, rooted
// at "postgres".
//
//go:embed postgres/*.sql
var Postgres embed.FS
