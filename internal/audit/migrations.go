package audit

import "embed"

// Migrations embeds operator_audit_log's goose migration chain, applied
// by internal/migrate at process startup against the audit database.
//
//go:embed migrations/*.sql
var Migrations embed.FS
