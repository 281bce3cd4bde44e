package store

import (
	"fmt"
	"regexp"
)

// Engineering table rows carry a value column plus a companion <column>flag
// column. Flag 0 marks a successfully written value; -99/11 are the
// missing-data value and flag used by bulk resets.
const (
	flagOK       = 0
	missingValue = -99
	flagReset    = 11
)

// Table and column names cannot be bound as query parameters, so both are
// validated against a closed shape before interpolation into SQL.
var engTablePattern = regexp.MustCompile(`^eng_[0-9]{4}_[a-z0-9]+_[0-9]{8}$`)

var allowedColumns = map[string]bool{
	"sst": true,
	"sal": true,
}

func validateTable(name string) error {
	if !engTablePattern.MatchString(name) {
		return fmt.Errorf("store: invalid engineering table name %q", name)
	}
	return nil
}

func validateColumn(name string) error {
	if !allowedColumns[name] {
		return fmt.Errorf("store: invalid parameter column %q", name)
	}
	return nil
}

func hdrtimeQuery(table string) string {
	return fmt.Sprintf("SELECT hdrtime FROM %s WHERE hdrtime BETWEEN $1 AND $2 ORDER BY hdrtime", table)
}

func updateSQL(table, column string) string {
	return fmt.Sprintf("UPDATE %s SET %s = $1, %sflag = %d WHERE hdrtime = $2", table, column, column, flagOK)
}

func resetSQL(table, column string) string {
	return fmt.Sprintf("UPDATE %s SET %s = %d, %sflag = %d WHERE hdrtime BETWEEN $1 AND $2",
		table, column, missingValue, column, flagReset)
}
