// Package migrations embeds the SQL schema applied by "hms-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
