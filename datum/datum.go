// Package datum implements the nullable scalar values that make up a Row.
package datum

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the concrete type carried by a Datum.
type Kind uint8

// Supported scalar kinds. This is the minimal type set needed to exercise
// equi-join key comparison, NULL-padding, and cell encoding; it is not a
// general SQL type system.
const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindVarchar
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindVarchar:
		return "varchar"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Datum is a single nullable scalar value. The zero value is NULL.
type Datum struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

// Null returns the NULL datum.
func Null() Datum { return Datum{kind: KindNull} }

// Int64 wraps an int64 value.
func Int64(v int64) Datum { return Datum{kind: KindInt64, i: v} }

// Float64 wraps a float64 value.
func Float64(v float64) Datum { return Datum{kind: KindFloat64, f: v} }

// Varchar wraps a string value.
func Varchar(v string) Datum { return Datum{kind: KindVarchar, s: v} }

// Bool wraps a bool value.
func Bool(v bool) Datum { return Datum{kind: KindBool, b: v} }

// IsNull reports whether the datum carries no value.
func (d Datum) IsNull() bool { return d.kind == KindNull }

// Kind returns the datum's kind.
func (d Datum) Kind() Kind { return d.kind }

// AsInt64 returns the wrapped int64, panicking if the kind does not match.
func (d Datum) AsInt64() int64 {
	if d.kind != KindInt64 {
		panic(fmt.Sprintf("datum: AsInt64 on %s", d.kind))
	}
	return d.i
}

// AsFloat64 returns the wrapped float64, panicking if the kind does not match.
func (d Datum) AsFloat64() float64 {
	if d.kind != KindFloat64 {
		panic(fmt.Sprintf("datum: AsFloat64 on %s", d.kind))
	}
	return d.f
}

// AsVarchar returns the wrapped string, panicking if the kind does not match.
func (d Datum) AsVarchar() string {
	if d.kind != KindVarchar {
		panic(fmt.Sprintf("datum: AsVarchar on %s", d.kind))
	}
	return d.s
}

// AsBool returns the wrapped bool, panicking if the kind does not match.
func (d Datum) AsBool() bool {
	if d.kind != KindBool {
		panic(fmt.Sprintf("datum: AsBool on %s", d.kind))
	}
	return d.b
}

// Equal reports logical scalar equality. NULL is never equal to anything,
// including another NULL, per the join operator's key-comparison rule.
func (d Datum) Equal(other Datum) bool {
	if d.kind == KindNull || other.kind == KindNull {
		return false
	}
	if d.kind != other.kind {
		return false
	}
	switch d.kind {
	case KindInt64:
		return d.i == other.i
	case KindFloat64:
		return d.f == other.f
	case KindVarchar:
		return d.s == other.s
	case KindBool:
		return d.b == other.b
	default:
		return false
	}
}

// String renders the datum for logs and test failure messages.
func (d Datum) String() string {
	switch d.kind {
	case KindNull:
		return "NULL"
	case KindInt64:
		return strconv.FormatInt(d.i, 10)
	case KindFloat64:
		return strconv.FormatFloat(d.f, 'g', -1, 64)
	case KindVarchar:
		return strconv.Quote(d.s)
	case KindBool:
		return strconv.FormatBool(d.b)
	default:
		return "<invalid>"
	}
}

// SortKeyBytes returns a memcmp-ordered encoding of the datum, used by
// codec.SerializePK and row.KeyOf. Ascending order unless desc is true.
func (d Datum) SortKeyBytes(desc bool) []byte {
	var buf []byte
	switch d.kind {
	case KindNull:
		buf = []byte{0x00}
	case KindInt64:
		buf = make([]byte, 9)
		buf[0] = 0x01
		// Flip the sign bit so two's-complement order matches memcmp order.
		u := uint64(d.i) ^ (1 << 63)
		putUint64BE(buf[1:], u)
	case KindFloat64:
		buf = make([]byte, 9)
		buf[0] = 0x02
		putUint64BE(buf[1:], floatSortKey(d.f))
	case KindVarchar:
		buf = make([]byte, 0, len(d.s)+1)
		buf = append(buf, 0x03)
		buf = append(buf, []byte(d.s)...)
	case KindBool:
		buf = []byte{0x04, 0}
		if d.b {
			buf[1] = 1
		}
	}
	if desc {
		for i := range buf {
			buf[i] = ^buf[i]
		}
	}
	return buf
}

func putUint64BE(dst []byte, v uint64) {
	dst[0] = byte(v >> 56)
	dst[1] = byte(v >> 48)
	dst[2] = byte(v >> 40)
	dst[3] = byte(v >> 32)
	dst[4] = byte(v >> 24)
	dst[5] = byte(v >> 16)
	dst[6] = byte(v >> 8)
	dst[7] = byte(v)
}

// floatSortKey maps a float64's bit pattern to a memcmp-ordered uint64.
func floatSortKey(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}
