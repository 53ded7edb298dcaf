package sqlitedb

import (
	"math"
	"strconv"
	"strings"
)

type ColumnType string

const (
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeText    ColumnType = "text"
)

// SQL returns the column affinity used when creating tables.
func (t ColumnType) SQL() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

type candidates struct {
	integer bool
	float   bool
	seen    bool
}

// TypeTracker detects the narrowest type every value of a column fits in.
// Empty values are ignored.
type TypeTracker struct {
	order   []string
	columns map[string]*candidates
}

func NewTypeTracker() *TypeTracker {
	return &TypeTracker{
		columns: map[string]*candidates{},
	}
}

// Observe records the values of a single row.
func (t *TypeTracker) Observe(row map[string]string) {
	for column, value := range row {
		c, ok := t.columns[column]
		if !ok {
			c = &candidates{integer: true, float: true}
			t.columns[column] = c
			t.order = append(t.order, column)
		}

		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		c.seen = true

		if c.integer {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				c.integer = false
			}
		}

		if c.float && !isFloat(value) {
			c.float = false
		}
	}
}

// Types returns the detected type of every observed column.
func (t *TypeTracker) Types() map[string]ColumnType {
	types := make(map[string]ColumnType, len(t.columns))

	for _, column := range t.order {
		c := t.columns[column]

		switch {
		case !c.seen:
			types[column] = TypeText
		case c.integer:
			types[column] = TypeInteger
		case c.float:
			types[column] = TypeFloat
		default:
			types[column] = TypeText
		}
	}

	return types
}

// isFloat reports whether SQLite will read value as the same REAL. NaN,
// infinities and hex floats parse in Go but CAST to 0.
func isFloat(value string) bool {
	if strings.ContainsAny(value, "xX") {
		return false
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}

	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
