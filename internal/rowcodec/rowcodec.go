// Package rowcodec serializes tuples into the fixed-width byte layout
// the storage engine core stores as opaque record payloads.
package rowcodec

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ColumnType identifies one of the three supported column types.
type ColumnType int

const (
	// Integer is a 4-byte little-endian signed integer.
	Integer ColumnType = iota
	// Boolean is a single byte (0 or 1).
	Boolean
	// Varchar is a 2-byte little-endian length prefix followed by
	// UTF-8 bytes, with N as the declared maximum length.
	Varchar
)

// Column describes one column of a table schema.
type Column struct {
	Name string
	Type ColumnType
	N    int // VARCHAR max length; unused otherwise
}

// ParseColumnType parses a SQL type name such as "INTEGER", "BOOLEAN",
// or "VARCHAR(64)".
func ParseColumnType(s string) (ColumnType, int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case s == "INTEGER" || s == "INT":
		return Integer, 0, nil
	case s == "BOOLEAN" || s == "BOOL":
		return Boolean, 0, nil
	case strings.HasPrefix(s, "VARCHAR"):
		open := strings.IndexByte(s, '(')
		close := strings.IndexByte(s, ')')
		if open < 0 || close < 0 || close < open {
			return 0, 0, fmt.Errorf("rowcodec: malformed VARCHAR type %q", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s[open+1 : close]))
		if err != nil {
			return 0, 0, fmt.Errorf("rowcodec: malformed VARCHAR length %q: %w", s, err)
		}
		return Varchar, n, nil
	default:
		return 0, 0, fmt.Errorf("rowcodec: unsupported column type %q", s)
	}
}

// Schema is an ordered list of columns. Tuples are encoded as the
// concatenation of each column's fixed-width field, in column order.
type Schema struct {
	Columns []Column
}

// EncodeRow serializes values (one per column, in schema order) into
// the wire format the Table Heap stores.
func EncodeRow(schema Schema, values []any) ([]byte, error) {
	if len(values) != len(schema.Columns) {
		return nil, fmt.Errorf("rowcodec: expected %d values, got %d", len(schema.Columns), len(values))
	}
	var buf []byte
	for i, col := range schema.Columns {
		v := values[i]
		switch col.Type {
		case Integer:
			n, err := toInt32(v)
			if err != nil {
				return nil, fmt.Errorf("rowcodec: column %q: %w", col.Name, err)
			}
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(n))
			buf = append(buf, b[:]...)
		case Boolean:
			b, err := toBool(v)
			if err != nil {
				return nil, fmt.Errorf("rowcodec: column %q: %w", col.Name, err)
			}
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case Varchar:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("rowcodec: column %q: expected string, got %T", col.Name, v)
			}
			if len(s) > col.N {
				return nil, fmt.Errorf("rowcodec: column %q: value length %d exceeds VARCHAR(%d)", col.Name, len(s), col.N)
			}
			var lb [2]byte
			binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
			buf = append(buf, lb[:]...)
			buf = append(buf, s...)
		default:
			return nil, fmt.Errorf("rowcodec: column %q: unknown column type", col.Name)
		}
	}
	return buf, nil
}

// DecodeRow parses data according to schema, returning one value per
// column in schema order.
func DecodeRow(schema Schema, data []byte) ([]any, error) {
	values := make([]any, len(schema.Columns))
	off := 0
	for i, col := range schema.Columns {
		switch col.Type {
		case Integer:
			if off+4 > len(data) {
				return nil, fmt.Errorf("rowcodec: column %q: truncated INTEGER", col.Name)
			}
			values[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		case Boolean:
			if off+1 > len(data) {
				return nil, fmt.Errorf("rowcodec: column %q: truncated BOOLEAN", col.Name)
			}
			values[i] = data[off] != 0
			off++
		case Varchar:
			if off+2 > len(data) {
				return nil, fmt.Errorf("rowcodec: column %q: truncated VARCHAR length", col.Name)
			}
			l := int(binary.LittleEndian.Uint16(data[off : off+2]))
			off += 2
			if off+l > len(data) {
				return nil, fmt.Errorf("rowcodec: column %q: truncated VARCHAR data", col.Name)
			}
			values[i] = string(data[off : off+l])
			off += l
		default:
			return nil, fmt.Errorf("rowcodec: column %q: unknown column type", col.Name)
		}
	}
	return values, nil
}

func toInt32(v any) (int32, error) {
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		return int32(n), nil
	case int64:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

// String renders a ColumnType the way it appears in DDL / schema JSON.
func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	case Varchar:
		return "VARCHAR"
	default:
		return "UNKNOWN"
	}
}
