// Package migrations embeds the SQLite remote schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
