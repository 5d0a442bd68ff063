package connectors

import "embed"

// Migrations embeds the connector registry and rollup tables' goose
// migration chain, applied by internal/migrate at process startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
