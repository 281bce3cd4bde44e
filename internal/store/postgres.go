// Package store is the Postgres adapter behind the reconciliation driver's
// backend interface: partition resolution from datasetinfo, header-time
// queries, and transactional column updates on engineering tables.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oceanops/moorsync/internal/models"
)

type Config struct {
	Host     string
	Database string
	User     string
	Password string
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s dbname=%s user=%s password=%s", c.Host, c.Database, c.User, c.Password)
}

// Postgres owns one connection pool to the engineering database. Not shared
// across concurrent reconciliation passes.
type Postgres struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, cfg Config) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("connect to %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// ResolvePartitions looks up the deployments overlapping [start, end] for a
// station, ordered chronologically by deployment start date.
func (p *Postgres) ResolvePartitions(ctx context.Context, station string, start, end time.Time) ([]models.Partition, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT systemnum, startdate FROM datasetinfo
		WHERE LOWER(location) = LOWER($1)
		  AND (mintime, maxtime) OVERLAPS ($2::date, $3::date)
		ORDER BY startdate
	`, station, start, end)
	if err != nil {
		return nil, fmt.Errorf("query datasetinfo: %w", err)
	}
	defer rows.Close()

	var partitions []models.Partition
	for rows.Next() {
		var part models.Partition
		if err := rows.Scan(&part.SystemNum, &part.StartDate); err != nil {
			return nil, fmt.Errorf("scan datasetinfo row: %w", err)
		}
		partitions = append(partitions, part)
	}
	return partitions, rows.Err()
}

// TableExists reports whether the named table is present. Historic database
// problems left some resolved deployments without their engineering table.
func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return exists, nil
}

// HeaderTimes returns the table's hdrtime values within [start, end],
// ascending.
func (p *Postgres) HeaderTimes(ctx context.Context, table string, start, end time.Time) ([]time.Time, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, hdrtimeQuery(table), start, end)
	if err != nil {
		return nil, fmt.Errorf("query hdrtimes from %s: %w", table, err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan hdrtime: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// ApplyUpdates writes one batch of column updates in a single transaction,
// setting the value and clearing its flag column. The statement keys on
// hdrtime, so re-running the same batch is a no-op upsert.
func (p *Postgres) ApplyUpdates(ctx context.Context, table, column string, updates []models.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateTable(table); err != nil {
		return err
	}
	if err := validateColumn(column); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	sql := updateSQL(table, column)
	for _, u := range updates {
		batch.Queue(sql, u.Value, u.HdrTime)
	}

	res := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("update %s.%s: %w", table, column, err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// ResetColumn bulk-sets the column to the missing-data sentinel over a range.
// Older tables used 0 for missing data rather than -99.
func (p *Postgres) ResetColumn(ctx context.Context, table, column string, start, end time.Time) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if err := validateColumn(column); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, resetSQL(table, column), start, end)
	if err != nil {
		return fmt.Errorf("reset %s.%s: %w", table, column, err)
	}
	return nil
}
