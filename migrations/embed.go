// Package migrations embeds the SQL migrations for the booking archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
