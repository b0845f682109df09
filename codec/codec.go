// Package codec implements the cell-based row encoding shared by the
// join's persistent state and the materialized-view writer: one key-value
// pair per column, keyed by (sort-key prefix || pk bytes || column index).
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"storj.io/dataflow/datum"
	"storj.io/dataflow/row"
)

func float64bits(f float64) uint64    { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }

// OrderSpec describes, per column of a pk projection, whether it sorts
// ascending or descending in the memcmp-ordered key encoding.
type OrderSpec []bool

// Ascending returns an OrderSpec of n ascending columns.
func Ascending(n int) OrderSpec {
	return make(OrderSpec, n)
}

// SerializePK encodes a row's primary-key projection into a byte prefix,
// one 4-byte-length-prefixed sort-key segment per column in pkIndices
// order. For fixed-width kinds (int64, float64, bool) memcmp order of the
// result follows the column order; for varchar columns the length prefix
// is compared first, so a shorter string sorts before a longer one
// regardless of its characters.
func SerializePK(r row.Row, pkIndices []int, order OrderSpec) []byte {
	var out []byte
	for i, idx := range pkIndices {
		desc := false
		if i < len(order) {
			desc = order[i]
		}
		seg := r[idx].SortKeyBytes(desc)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seg)))
		out = append(out, lenBuf[:]...)
		out = append(out, seg...)
	}
	return out
}

// SerializeCellIdx encodes a column index as a 4-byte big-endian integer,
// the suffix that distinguishes cells of the same row.
func SerializeCellIdx(i uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], i)
	return buf[:]
}

// cell wire tags. The encoding is intentionally simple (tag byte + fixed or
// length-prefixed payload) rather than a general serialization format,
// matching the narrow Datum kind set in package datum.
const (
	tagNull byte = iota
	tagInt64
	tagFloat64
	tagVarchar
	tagBool
)

// SerializeCell encodes one nullable datum as a value blob.
func SerializeCell(d datum.Datum) []byte {
	switch d.Kind() {
	case datum.KindNull:
		return []byte{tagNull}
	case datum.KindInt64:
		buf := make([]byte, 9)
		buf[0] = tagInt64
		binary.BigEndian.PutUint64(buf[1:], uint64(d.AsInt64()))
		return buf
	case datum.KindFloat64:
		buf := make([]byte, 9)
		buf[0] = tagFloat64
		binary.BigEndian.PutUint64(buf[1:], float64bits(d.AsFloat64()))
		return buf
	case datum.KindVarchar:
		s := d.AsVarchar()
		buf := make([]byte, 0, len(s)+1)
		buf = append(buf, tagVarchar)
		buf = append(buf, s...)
		return buf
	case datum.KindBool:
		v := byte(0)
		if d.AsBool() {
			v = 1
		}
		return []byte{tagBool, v}
	default:
		panic(fmt.Sprintf("codec: unsupported datum kind %s", d.Kind()))
	}
}

// DeserializeCell decodes a value blob produced by SerializeCell.
func DeserializeCell(buf []byte) (datum.Datum, error) {
	if len(buf) == 0 {
		return datum.Datum{}, fmt.Errorf("codec: empty cell")
	}
	switch buf[0] {
	case tagNull:
		return datum.Null(), nil
	case tagInt64:
		if len(buf) != 9 {
			return datum.Datum{}, fmt.Errorf("codec: malformed int64 cell")
		}
		return datum.Int64(int64(binary.BigEndian.Uint64(buf[1:]))), nil
	case tagFloat64:
		if len(buf) != 9 {
			return datum.Datum{}, fmt.Errorf("codec: malformed float64 cell")
		}
		return datum.Float64(float64frombits(binary.BigEndian.Uint64(buf[1:]))), nil
	case tagVarchar:
		return datum.Varchar(string(buf[1:])), nil
	case tagBool:
		if len(buf) != 2 {
			return datum.Datum{}, fmt.Errorf("codec: malformed bool cell")
		}
		return datum.Bool(buf[1] != 0), nil
	default:
		return datum.Datum{}, fmt.Errorf("codec: unknown cell tag %d", buf[0])
	}
}
