package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Partition is one deployment slice of stored engineering records, as resolved
// from the datasetinfo table.
type Partition struct {
	SystemNum int
	StartDate string // YYYYMMDD
}

// TableName derives the engineering table identifier for this partition:
// eng_<systemnum padded to 4>_<lowercase station>_<start date>.
func (p Partition) TableName(station string) string {
	return fmt.Sprintf("eng_%04d_%s_%s", p.SystemNum, strings.ToLower(station), p.StartDate)
}

// SensorSeries holds one station's externally sourced readings in ascending
// time order. Columns are keyed by the feed's field name ("sst", "sss") and
// run parallel to Times. Timestamps are unique; upstream parsing collapses
// duplicates to the first occurrence.
type SensorSeries struct {
	Station string
	Times   []time.Time
	Columns map[string][]float64
}

func (s *SensorSeries) Len() int {
	return len(s.Times)
}

func (s *SensorSeries) Start() time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	return s.Times[0]
}

func (s *SensorSeries) End() time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	return s.Times[len(s.Times)-1]
}

// Update is a single corrective write: set a parameter column to Value at the
// row whose header time equals HdrTime.
type Update struct {
	HdrTime time.Time
	Value   float64
}

// Metadata summarises one reconciliation pass for auditing.
type Metadata struct {
	Station    string
	Parameters []string // internal column names, in caller order
	Start      time.Time
	End        time.Time
	Tables     []string // engineering tables that existed and were processed
}

// CatalogFile is one entry from the SOFS real-time catalog listing.
type CatalogFile struct {
	Name       string
	UploadedAt time.Time
}

// Run is a persisted record of one reconciliation invocation.
type Run struct {
	ID         int64
	Station    string
	Parameters string
	Start      time.Time
	End        time.Time
	Tables     string
	Error      sql.NullString
	CreatedAt  time.Time
}
