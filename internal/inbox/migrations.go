package inbox

import "embed"

// Migrations embeds message_inbox's goose migration chain, applied by
// internal/migrate at process startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
