// Package migrations embeds the consultation schema for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
