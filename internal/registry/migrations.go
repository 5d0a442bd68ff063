package registry

import "embed"

// Migrations embeds butler_registry's goose migration chain, applied by
// internal/migrate at process startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
