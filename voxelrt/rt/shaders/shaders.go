package shaders

import (
	"embed"
)

// Sources holds the default <pass>_vs.wgsl / <pass>_fs.wgsl pairs.
//
//go:embed *.wgsl
var Sources embed.FS

// Pass names, in draw order.
const (
	Raymarching = "raymarching"
	Lighting    = "lighting"
	Filter      = "filter"
)
