// Package levels embeds the built-in level files.
package levels

import "embed"

//go:embed *.yaml
var Files embed.FS
