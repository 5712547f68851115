package migrations

import "embed"

// Files embeds the goose migrations for use by the migrator.
//
//go:embed *.sql
var Files embed.FS
