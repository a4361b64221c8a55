// Package web embeds the browser-side tracker served at /tracker.js.
package web

import (
	"embed"
	"io/fs"
)

//go:embed tracker.js
var assets embed.FS

func Assets() fs.FS {
	return assets
}
