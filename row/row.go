// Package row defines the Row and Schema types that StreamChunk and the
// join operator are built on.
package row

import (
	"strings"

	"storj.io/dataflow/datum"
)

// Schema is an ordered list of column data types.
type Schema []datum.Kind

// Len returns the number of columns in the schema.
func (s Schema) Len() int { return len(s) }

// Concat returns a new schema that is the column-wise concatenation of s
// followed by other, matching the join operator's left-columns-then-right-
// columns output convention.
func (s Schema) Concat(other Schema) Schema {
	out := make(Schema, 0, len(s)+len(other))
	out = append(out, s...)
	out = append(out, other...)
	return out
}

// Row is an ordered, value-typed tuple of datums conforming to a schema.
// Rows are cheap to clone; Clone performs the one copy that matters (the
// backing slice).
type Row []datum.Datum

// New allocates a Row from the given values.
func New(values ...datum.Datum) Row {
	r := make(Row, len(values))
	copy(r, values)
	return r
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Project returns a new Row containing only the columns at indices.
func (r Row) Project(indices []int) Row {
	out := make(Row, len(indices))
	for i, idx := range indices {
		out[i] = r[idx]
	}
	return out
}

// Concat returns a new Row that is r's columns followed by other's.
func (r Row) Concat(other Row) Row {
	out := make(Row, 0, len(r)+len(other))
	out = append(out, r...)
	out = append(out, other...)
	return out
}

// NullPad returns a Row of length n filled with NULL datums, used to
// represent the unmatched side of an outer join.
func NullPad(n int) Row {
	out := make(Row, n)
	for i := range out {
		out[i] = datum.Null()
	}
	return out
}

// Equal reports whether two rows carry the same values in the same order.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if !r[i].Equal(other[i]) && !(r[i].IsNull() && other[i].IsNull()) {
			return false
		}
	}
	return true
}

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Key is the byte-joined projection of a row onto a set of column indices,
// used as a map key for join-keys and primary keys. Two rows with a NULL
// component never produce equal keys in the join sense (callers must check
// KeyOf's hasNull result before using Key for equi-join matching).
type Key string

// KeyOf projects row onto indices and returns both the opaque map Key and
// whether any projected column is NULL.
func KeyOf(r Row, indices []int) (k Key, hasNull bool) {
	var b strings.Builder
	for _, idx := range indices {
		d := r[idx]
		if d.IsNull() {
			hasNull = true
		}
		enc := d.SortKeyBytes(false)
		var lenBuf [4]byte
		lenBuf[0] = byte(len(enc) >> 24)
		lenBuf[1] = byte(len(enc) >> 16)
		lenBuf[2] = byte(len(enc) >> 8)
		lenBuf[3] = byte(len(enc))
		b.Write(lenBuf[:])
		b.Write(enc)
	}
	return Key(b.String()), hasNull
}
