package dlq

import "embed"

// Migrations embeds dead_letter_queue's goose migration chain, applied by
// internal/migrate at process startup against the audit database.
//
//go:embed migrations/*.sql
var Migrations embed.FS
