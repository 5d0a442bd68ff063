package registry

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

// Store is the pgx-backed butler_registry repository.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Register upserts a butler by name, grounded on registry.py's
// register_butler ON CONFLICT (name) DO UPDATE.
func (s *Store) Register(ctx context.Context, e Entry) error {
	modulesJSON, err := json.Marshal(e.Modules)
	if err != nil {
		return apperrors.NewValidation("cannot marshal modules")
	}
	capsJSON := e.Capabilities
	if len(capsJSON) == 0 {
		capsJSON = json.RawMessage("{}")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO butler_registry (name, endpoint_url, transport, description, modules, capabilities, last_seen_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET
			endpoint_url = $2, transport = $3, description = $4, modules = $5::jsonb,
			capabilities = $6::jsonb, last_seen_at = now()
	`, e.Name, e.EndpointURL, e.Transport, e.Description, modulesJSON, capsJSON)
	if err != nil {
		return apperrors.NewDownstreamFailure("register butler failed", err)
	}
	return nil
}

// Heartbeat updates last_seen_at for a known target after a successful
// dispatch, per spec.md section 4.7.
func (s *Store) Heartbeat(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE butler_registry SET last_seen_at = now() WHERE name = $1`, name)
	if err != nil {
		return apperrors.NewDownstreamFailure("heartbeat failed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewPolicyViolation("unknown target: " + name)
	}
	return nil
}

// Get returns one registered butler. Targets not in the registry are a
// routing error (no implicit creation), per spec.md section 4.7.
func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, endpoint_url, transport, description, modules, capabilities, last_seen_at
		FROM butler_registry WHERE name = $1
	`, name)
	return scanEntry(row)
}

// List returns all registered butlers, ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, endpoint_url, transport, description, modules, capabilities, last_seen_at
		FROM butler_registry ORDER BY name
	`)
	if err != nil {
		return nil, apperrors.NewDownstreamFailure("list butlers failed", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var modulesJSON []byte
	if err := row.Scan(&e.Name, &e.EndpointURL, &e.Transport, &e.Description, &modulesJSON, &e.Capabilities, &e.LastSeenAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewPolicyViolation("unknown target")
		}
		return nil, apperrors.NewDownstreamFailure("scan butler_registry row failed", err)
	}
	_ = json.Unmarshal(modulesJSON, &e.Modules)
	return &e, nil
}
