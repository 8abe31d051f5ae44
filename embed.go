package campusadmin

import "embed"

// EmbeddedAssets contains static assets shipped with the admin:
// editor.js and admin.css
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
