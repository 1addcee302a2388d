// Package webassets embeds the read-only dashboard pages served by the
// "watcher api" command.
package webassets

import "embed"

// Files contains the embedded dashboard pages. Keep this broad enough so
// page updates are automatically packaged into binaries.
//
//go:embed *.html
var Files embed.FS
