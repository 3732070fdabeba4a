// Package migrations embeds the SQL migrations for the postgres snapshot store.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
