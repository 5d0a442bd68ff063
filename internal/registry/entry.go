// Package registry implements C7: butler registration, lookup, and
// descriptor-directory discovery.
//
// Grounded on original_source's
// roster/switchboard/tools/registry/registry.py (register_butler's
// upsert-by-name, list_butlers, discover_butlers scanning a directory of
// descriptor files), translated from asyncpg to pgx/v5.
package registry

import (
	"encoding/json"
	"time"
)

type Transport string

const (
	TransportHTTP Transport = "http"
	TransportSSE  Transport = "sse"
)

// Entry is a butler_registry row.
type Entry struct {
	Name         string          `json:"name"`
	EndpointURL  string          `json:"endpoint_url"`
	Transport    Transport       `json:"transport"`
	Description  string          `json:"description"`
	Modules      []string        `json:"modules"`
	Capabilities json.RawMessage `json:"capabilities"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
}

// HasCapability reports whether a named boolean capability flag is set,
// e.g. HasCapability("backfill"). Missing/malformed capability documents
// are treated as "no capabilities."
func (e Entry) HasCapability(name string) bool {
	if len(e.Capabilities) == 0 {
		return false
	}
	var flags map[string]bool
	if err := json.Unmarshal(e.Capabilities, &flags); err != nil {
		return false
	}
	return flags[name]
}
