package joinstate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/joinstate"
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/row"
)

func TestMapColdStartEntriesBeginEmpty(t *testing.T) {
	m := joinstate.NewMap(keyspace.Root("op").Child("l"), 2, 1, false)
	e := m.Get(row.Key("k"))
	require.Equal(t, joinstate.Empty, e.Kind())
}

func TestMapResumedEntriesBeginNotAll(t *testing.T) {
	m := joinstate.NewMap(keyspace.Root("op").Child("l"), 2, 1, true)
	e := m.Get(row.Key("k"))
	require.Equal(t, joinstate.NotAll, e.Kind())
}

func TestMapGetIsStableAcrossCalls(t *testing.T) {
	m := joinstate.NewMap(keyspace.Root("op").Child("l"), 2, 1, false)
	a := m.Get(row.Key("k"))
	b := m.Get(row.Key("k"))
	require.Same(t, a, b)
}

func TestMapPeekDoesNotCreate(t *testing.T) {
	m := joinstate.NewMap(keyspace.Root("op").Child("l"), 2, 1, false)
	_, ok := m.Peek(row.Key("k"))
	require.False(t, ok)

	m.Get(row.Key("k"))
	_, ok = m.Peek(row.Key("k"))
	require.True(t, ok)
}

func TestMapDirtyEntriesOnlyReturnsDirty(t *testing.T) {
	m := joinstate.NewMap(keyspace.Root("op").Child("l"), 2, 1, false)
	m.Get(row.Key("clean"))
	dirty := m.Get(row.Key("dirty"))
	dirty.Insert(row.Key("pk"), row.New())

	entries := m.DirtyEntries()
	require.Len(t, entries, 1)
	require.Equal(t, row.Key("dirty"), entries[0].Key)
}
