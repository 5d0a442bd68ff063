package router

import "embed"

// Migrations embeds routing_instructions's goose migration chain, applied
// by internal/migrate at process startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
