// Package migrations embeds the SQL schema of the order store.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files applied at startup.
//
//go:embed *.sql
var FS embed.FS
