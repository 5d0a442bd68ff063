package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// descriptor is the JSON shape of a butler.json roster descriptor. The
// Python original scans butler.toml files; Go's ambient config stack in
// this corpus is env/JSON driven rather than TOML-driven, so Switchboard
// adopts a JSON descriptor of the same shape instead of pulling in a TOML
// parser no other component needs.
type descriptor struct {
	Name        string   `json:"name"`
	Port        int      `json:"port"`
	Description string   `json:"description"`
	Modules     []string `json:"modules"`
	Transport   string   `json:"transport"`
}

// Discoverer scans a roster directory for butler.json descriptors and
// registers each, grounded on registry.py's discover_butlers.
type Discoverer struct {
	store *Store
	log   zerolog.Logger
}

func NewDiscoverer(store *Store, log zerolog.Logger) *Discoverer {
	return &Discoverer{store: store, log: log}
}

// Scan walks rosterDir for subdirectories containing a butler.json file
// and registers each discovered butler. Returns the names discovered.
func (d *Discoverer) Scan(ctx context.Context, rosterDir string) ([]string, error) {
	entries, err := os.ReadDir(rosterDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		descPath := filepath.Join(rosterDir, entry.Name(), "butler.json")
		raw, err := os.ReadFile(descPath)
		if err != nil {
			continue
		}

		var desc descriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			d.log.Warn().Err(err).Str("path", descPath).Msg("failed to parse butler descriptor")
			continue
		}

		transport := TransportHTTP
		if desc.Transport == string(TransportSSE) {
			transport = TransportSSE
		}
		scheme := "http"
		path := "/route"
		if transport == TransportSSE {
			path = "/sse"
		}
		endpoint := fmt.Sprintf("%s://localhost:%d%s", scheme, desc.Port, path)

		e := Entry{
			Name:        desc.Name,
			EndpointURL: endpoint,
			Transport:   transport,
			Description: desc.Description,
			Modules:     desc.Modules,
		}
		if err := d.store.Register(ctx, e); err != nil {
			d.log.Warn().Err(err).Str("butler", desc.Name).Msg("failed to register discovered butler")
			continue
		}
		names = append(names, desc.Name)
	}

	return names, nil
}
