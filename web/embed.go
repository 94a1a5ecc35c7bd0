package webassets

import "embed"

// FS contains the embedded demo assets.
//
//go:embed auth-client.js demo.html
var FS embed.FS
