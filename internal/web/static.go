package web

import (
	"embed"
)

// staticFiles holds the booth page and its assets.
//
//go:embed static/*
var staticFiles embed.FS
