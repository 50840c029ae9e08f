// Package migrations embeds the goose migrations of the subscription store.
package migrations

import "embed"

// FS holds the SQL migrations, applied by pg.Migrate.
//
//go:embed *.sql
var FS embed.FS
