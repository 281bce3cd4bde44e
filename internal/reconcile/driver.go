// Package reconcile aligns externally sourced sensor series against the
// header timestamps of stored engineering tables and issues corrective
// updates for well-matched pairs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oceanops/moorsync/internal/align"
	"github.com/oceanops/moorsync/internal/metrics"
	"github.com/oceanops/moorsync/internal/models"
)

const (
	// Forward padding on the query end date so boundary records belonging to
	// the final sample are not excluded by an exact range query.
	rangePad = 10 * time.Minute

	// Known systematic skew between the header clock and the sensor feed.
	// Added to header times before alignment; emitted keys are unadjusted.
	headerOffset = 17 * time.Minute

	// Maximum allowable distance between a header time and a sensor sample.
	tolerance = 20 * time.Minute
)

// Backend is the narrow persistence collaborator the driver runs against.
// Production uses the Postgres adapter in internal/store; tests use an
// in-memory fake.
type Backend interface {
	// ResolvePartitions returns the partitions overlapping [start, end] for a
	// station, ordered by start date.
	ResolvePartitions(ctx context.Context, station string, start, end time.Time) ([]models.Partition, error)

	// TableExists reports whether an engineering table is actually present.
	// Some resolved partitions are not; that is a known inconsistency.
	TableExists(ctx context.Context, table string) (bool, error)

	// HeaderTimes returns the table's header timestamps within [start, end],
	// ascending.
	HeaderTimes(ctx context.Context, table string, start, end time.Time) ([]time.Time, error)

	// ApplyUpdates commits a batch of column updates in one transaction.
	ApplyUpdates(ctx context.Context, table, column string, updates []models.Update) error

	// ResetColumn sets the column to the missing-data sentinel over a range.
	ResetColumn(ctx context.Context, table, column string, start, end time.Time) error
}

// UnitError reports a persistence failure for one partition/parameter unit,
// with enough context for manual replay. Prior units' commits are unaffected.
type UnitError struct {
	Table   string
	Column  string
	HdrTime time.Time // first header time of the failed batch
	Err     error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("update %s.%s from %s: %v", e.Table, e.Column, e.HdrTime.Format("2006-01-02 15:04:05"), e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// Driver runs reconciliation passes against a single backend. It holds no
// state between calls; re-running over the same range is safe because the
// backend's updates are idempotent upserts.
type Driver struct {
	backend Backend
	params  *ParamMap
	testing bool
}

// NewDriver returns a driver for the given backend. With testing set, all
// persistence calls are short-circuited while alignment and metadata are
// still computed.
func NewDriver(backend Backend, params *ParamMap, testing bool) *Driver {
	return &Driver{backend: backend, params: params, testing: testing}
}

// Reconcile aligns the series against every overlapping engineering table for
// the requested parameters and persists one update per matched pair, one
// commit per table/parameter unit. A unit's failure does not block the
// remaining units; all failures are joined into the returned error alongside
// the metadata for the portions that completed.
func (d *Driver) Reconcile(ctx context.Context, series *models.SensorSeries, parameters []string) (*models.Metadata, error) {
	if series.Len() == 0 {
		return nil, errors.New("reconcile: sensor series has no samples")
	}

	// Translate every parameter up front so an unknown name fails before any
	// table is touched.
	columns := make([]string, len(parameters))
	for i, p := range parameters {
		col, err := d.params.Column(p)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}

	start := series.Start()
	end := series.End().Add(rangePad)

	tables, err := d.resolveTables(ctx, series.Station, start, end)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, table := range tables {
		for i, field := range parameters {
			if err := d.reconcileUnit(ctx, table, field, columns[i], series, start, end); err != nil {
				errs = append(errs, err)
				metrics.UnitFailures.WithLabelValues(series.Station, columns[i]).Inc()
				continue
			}
		}
		metrics.PartitionsReconciled.WithLabelValues(series.Station).Inc()
	}

	meta := &models.Metadata{
		Station:    series.Station,
		Parameters: columns,
		Start:      start,
		End:        end,
		Tables:     tables,
	}
	return meta, errors.Join(errs...)
}

// ResetParameter bulk-invalidates a parameter column over a date range in
// every overlapping engineering table, independent of alignment. Used to
// clear out legacy missing-data conventions before a first reconciliation.
func (d *Driver) ResetParameter(ctx context.Context, station, field string, start, end time.Time) ([]string, error) {
	col, err := d.params.Column(field)
	if err != nil {
		return nil, err
	}

	tables, err := d.resolveTables(ctx, station, start, end)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, table := range tables {
		if d.testing {
			log.Printf("reconcile: testing mode, skipping reset of %s.%s", table, col)
			continue
		}
		if err := d.backend.ResetColumn(ctx, table, col, start, end); err != nil {
			errs = append(errs, fmt.Errorf("reset %s.%s: %w", table, col, err))
		}
	}
	return tables, errors.Join(errs...)
}

// resolveTables maps overlapping partitions to engineering table names,
// dropping any that do not exist in the backing store.
func (d *Driver) resolveTables(ctx context.Context, station string, start, end time.Time) ([]string, error) {
	partitions, err := d.backend.ResolvePartitions(ctx, station, start, end)
	if err != nil {
		return nil, fmt.Errorf("resolve partitions for %s: %w", station, err)
	}

	var tables []string
	for _, p := range partitions {
		name := p.TableName(station)
		ok, err := d.backend.TableExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", name, err)
		}
		if !ok {
			log.Printf("reconcile: table %s resolved but missing, skipping", name)
			continue
		}
		tables = append(tables, name)
	}
	return tables, nil
}

func (d *Driver) reconcileUnit(ctx context.Context, table, field, column string, series *models.SensorSeries, start, end time.Time) error {
	sensorTimes, sensorValues := positiveSamples(series, field)
	if len(sensorTimes) == 0 {
		return nil
	}

	hdrtimes, err := d.backend.HeaderTimes(ctx, table, start, end)
	if err != nil {
		return fmt.Errorf("header times for %s: %w", table, err)
	}
	if len(hdrtimes) == 0 {
		return nil
	}

	// Offset the header clock onto the feed clock, then look for the nearest
	// sensor sample around each adjusted header time.
	pivots := make([]time.Time, len(hdrtimes))
	for i, h := range hdrtimes {
		pivots[i] = h.Add(headerOffset)
	}

	matches, err := align.AlignWithin(sensorTimes, pivots, tolerance)
	if err != nil {
		return fmt.Errorf("align %s.%s: %w", table, column, err)
	}

	valueAt := make(map[int64]float64, len(sensorTimes))
	for i, t := range sensorTimes {
		valueAt[t.UnixNano()] = sensorValues[i]
	}

	var updates []models.Update
	for i, m := range matches {
		if !m.Matched {
			continue
		}
		// Key by the original header time, not the offset-adjusted pivot.
		updates = append(updates, models.Update{
			HdrTime: hdrtimes[i],
			Value:   valueAt[m.Time.UnixNano()],
		})
	}
	if len(updates) == 0 {
		return nil
	}

	if d.testing {
		log.Printf("reconcile: testing mode, would update %d rows in %s.%s", len(updates), table, column)
		return nil
	}

	if err := d.backend.ApplyUpdates(ctx, table, column, updates); err != nil {
		return &UnitError{Table: table, Column: column, HdrTime: updates[0].HdrTime, Err: err}
	}
	log.Printf("reconcile: updated %d rows in %s.%s", len(updates), table, column)
	metrics.RowsUpdated.WithLabelValues(series.Station, column).Add(float64(len(updates)))
	return nil
}

// positiveSamples returns the timestamps and values of the named column with
// non-positive values dropped. A reading <= 0 is the feed's missing-data
// sentinel for temperature and salinity, not a real measurement.
func positiveSamples(series *models.SensorSeries, field string) ([]time.Time, []float64) {
	values, ok := series.Columns[field]
	if !ok {
		return nil, nil
	}

	var times []time.Time
	var kept []float64
	for i, v := range values {
		if v > 0 {
			times = append(times, series.Times[i])
			kept = append(kept, v)
		}
	}
	return times, kept
}
