// Package migrations embeds the SQL schema applied at startup.
package migrations

import "embed"

// FS holds every *.sql migration file.
//
//go:embed *.sql
var FS embed.FS
