package reconcile

import (
	"errors"
	"fmt"
)

// ErrUnknownParameter is returned when a requested parameter has no entry in
// the name mapping. Surfaced immediately rather than silently skipped.
var ErrUnknownParameter = errors.New("reconcile: unknown parameter")

// ParamMap translates between the external feed's field names ("sss") and the
// internal schema's column names ("sal"). Both directions are total over the
// supported parameter set. Construct once at startup and pass in explicitly.
type ParamMap struct {
	toColumn map[string]string
	toField  map[string]string
}

func NewParamMap() *ParamMap {
	return &ParamMap{
		toColumn: map[string]string{
			"sst": "sst",
			"sss": "sal",
			"sal": "sal",
		},
		toField: map[string]string{
			"sst": "sst",
			"sal": "sss",
		},
	}
}

// Column maps a feed field name to its engineering table column.
func (m *ParamMap) Column(field string) (string, error) {
	col, ok := m.toColumn[field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParameter, field)
	}
	return col, nil
}

// Field maps an engineering table column back to its feed field name.
func (m *ParamMap) Field(column string) (string, error) {
	f, ok := m.toField[column]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParameter, column)
	}
	return f, nil
}
