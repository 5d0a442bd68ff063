package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PartitionManager keeps message_inbox's monthly range partitions ahead of
// now and prunes partitions past retention, per spec.md section 4.3's
// "partition manager ensures the current + next month partitions exist; a
// pruner drops partitions past retention."
type PartitionManager struct {
	pool            *pgxpool.Pool
	retentionMonths int
	log             zerolog.Logger
}

func NewPartitionManager(pool *pgxpool.Pool, retentionMonths int, log zerolog.Logger) *PartitionManager {
	if retentionMonths <= 0 {
		retentionMonths = 3
	}
	return &PartitionManager{pool: pool, retentionMonths: retentionMonths, log: log}
}

// EnsureCurrentAndNext creates the current and next month's partitions if
// they do not already exist. Idempotent.
func (m *PartitionManager) EnsureCurrentAndNext(ctx context.Context) error {
	now := time.Now().UTC()
	for _, monthStart := range []time.Time{monthFloor(now), monthFloor(now).AddDate(0, 1, 0)} {
		if err := m.ensurePartition(ctx, monthStart); err != nil {
			return err
		}
	}
	return nil
}

func (m *PartitionManager) ensurePartition(ctx context.Context, monthStart time.Time) error {
	name := fmt.Sprintf("message_inbox_%04d%02d", monthStart.Year(), monthStart.Month())
	next := monthStart.AddDate(0, 1, 0)
	_, err := m.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF message_inbox
		FOR VALUES FROM ('%s') TO ('%s')
	`, name, monthStart.Format("2006-01-02"), next.Format("2006-01-02")))
	return err
}

// PruneExpired drops partitions whose range ends before the retention
// cutoff. Partition names follow message_inbox_YYYYMM.
func (m *PartitionManager) PruneExpired(ctx context.Context) error {
	cutoff := monthFloor(time.Now().UTC()).AddDate(0, -m.retentionMonths, 0)

	rows, err := m.pool.Query(ctx, `
		SELECT child.relname
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child  ON pg_inherits.inhrelid  = child.oid
		WHERE parent.relname = 'message_inbox'
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}

	for _, name := range names {
		var year, month int
		if _, err := fmt.Sscanf(name, "message_inbox_%4d%2d", &year, &month); err != nil {
			continue
		}
		partitionMonth := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if partitionMonth.Before(cutoff) {
			if _, err := m.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
				return err
			}
			m.log.Info().Str("partition", name).Msg("dropped expired message_inbox partition")
		}
	}
	return nil
}

func monthFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
