package triage

import "embed"

// Migrations embeds triage_rules's goose migration chain, applied by
// internal/migrate at process startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
