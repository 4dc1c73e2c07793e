package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector wraps a float32 slice for use as a PostgreSQL VECTOR column
// value. It implements sql.Scanner and driver.Valuer to convert between
// Go and the pgvector text format "[1.0,2.0,3.0]". On SQLite the same
// text format is stored in a plain TEXT column.
type Vector struct {
	floats []float32
}

// NewVector creates a Vector from a float32 slice. The input is copied so
// later mutations of the source slice have no effect.
func NewVector(floats []float32) Vector {
	cp := make([]float32, len(floats))
	copy(cp, floats)
	return Vector{floats: cp}
}

// Floats returns a copy of the underlying slice, or nil if the vector was
// never set (e.g. scanned from NULL).
func (v Vector) Floats() []float32 {
	if v.floats == nil {
		return nil
	}
	cp := make([]float32, len(v.floats))
	copy(cp, v.floats)
	return cp
}

// Dimension returns the number of elements in the vector.
func (v Vector) Dimension() int {
	return len(v.floats)
}

// IsZero reports whether the vector holds no data.
func (v Vector) IsZero() bool {
	return len(v.floats) == 0
}

// Scan implements sql.Scanner for the pgvector text format.
func (v *Vector) Scan(value any) error {
	if value == nil {
		v.floats = nil
		return nil
	}

	var raw string
	switch val := value.(type) {
	case string:
		raw = val
	case []byte:
		raw = string(val)
	default:
		return fmt.Errorf("cannot scan %T into Vector", value)
	}

	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		v.floats = []float32{}
		return nil
	}

	parts := strings.Split(raw, ",")
	floats := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("parse element %d: %w", i, err)
		}
		floats[i] = float32(f)
	}

	v.floats = floats
	return nil
}

// Value implements driver.Valuer, serializing to the pgvector text format.
func (v Vector) Value() (driver.Value, error) {
	if v.floats == nil {
		return nil, nil
	}
	return v.String(), nil
}

// String returns the pgvector literal "[1.0,2.0,3.0]".
func (v Vector) String() string {
	var b strings.Builder
	b.Grow(len(v.floats)*10 + 2)
	b.WriteByte('[')
	for i, f := range v.floats {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
