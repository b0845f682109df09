package datum_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/datum"
)

func TestNullNeverEqual(t *testing.T) {
	require.False(t, datum.Null().Equal(datum.Null()))
	require.False(t, datum.Null().Equal(datum.Int64(0)))
}

func TestEqualAcrossKinds(t *testing.T) {
	require.True(t, datum.Int64(5).Equal(datum.Int64(5)))
	require.False(t, datum.Int64(5).Equal(datum.Int64(6)))
	require.False(t, datum.Int64(5).Equal(datum.Float64(5)))
	require.True(t, datum.Varchar("a").Equal(datum.Varchar("a")))
	require.True(t, datum.Bool(true).Equal(datum.Bool(true)))
}

func TestAsAccessorsPanicOnMismatch(t *testing.T) {
	require.Panics(t, func() { datum.Int64(1).AsVarchar() })
	require.Panics(t, func() { datum.Varchar("x").AsInt64() })
	require.Panics(t, func() { datum.Null().AsBool() })
}

func TestSortKeyBytesOrdersInt64Correctly(t *testing.T) {
	vals := []int64{-100, -1, 0, 1, 100, 1 << 40, -(1 << 40)}
	keys := make([][]byte, len(vals))
	for i, v := range vals {
		keys[i] = datum.Int64(v).SortKeyBytes(false)
	}
	sorted := append([][]byte{}, keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	wantOrder := []int64{-(1 << 40), -100, -1, 0, 1, 100, 1 << 40}
	gotOrder := make([]int64, len(vals))
	for i, k := range sorted {
		for j, orig := range keys {
			if bytes.Equal(k, orig) {
				gotOrder[i] = vals[j]
			}
		}
	}
	require.Equal(t, wantOrder, gotOrder)
}

func TestSortKeyBytesOrdersFloat64Correctly(t *testing.T) {
	vals := []float64{-3.5, -0.001, 0, 0.001, 3.5}
	keys := make([][]byte, len(vals))
	for i, v := range vals {
		keys[i] = datum.Float64(v).SortKeyBytes(false)
	}
	for i := 1; i < len(keys); i++ {
		require.True(t, bytes.Compare(keys[i-1], keys[i]) < 0, "index %d", i)
	}
}

func TestSortKeyBytesDescendingReversesOrder(t *testing.T) {
	a := datum.Int64(1).SortKeyBytes(false)
	b := datum.Int64(2).SortKeyBytes(false)
	require.True(t, bytes.Compare(a, b) < 0)

	aDesc := datum.Int64(1).SortKeyBytes(true)
	bDesc := datum.Int64(2).SortKeyBytes(true)
	require.True(t, bytes.Compare(aDesc, bDesc) > 0)
}

func TestSortKeyBytesVarcharOrdersLexically(t *testing.T) {
	a := datum.Varchar("apple").SortKeyBytes(false)
	b := datum.Varchar("banana").SortKeyBytes(false)
	require.True(t, bytes.Compare(a, b) < 0)
}

func TestStringRendersQuotedVarchar(t *testing.T) {
	require.Equal(t, `"hi"`, datum.Varchar("hi").String())
	require.Equal(t, "NULL", datum.Null().String())
	require.Equal(t, "42", datum.Int64(42).String())
}
