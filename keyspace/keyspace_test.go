package keyspace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/keyspace"
)

func TestChildDoesNotCollideAcrossSegmentBoundaries(t *testing.T) {
	a := keyspace.Root("x").Child("a").Child("bc")
	b := keyspace.Root("x").Child("ab").Child("c")
	require.NotEqual(t, a.Prefix(), b.Prefix())
}

func TestKeyConcatenatesPrefixAndParts(t *testing.T) {
	ks := keyspace.Root("op1").Child("l")
	k := ks.Key([]byte("foo"), []byte("bar"))
	require.True(t, len(k) > len(ks.Prefix()))
	require.Equal(t, append(append([]byte{}, ks.Prefix()...), []byte("foobar")...), k)
}

func TestLeftRightKeyspacesDiffer(t *testing.T) {
	root := keyspace.Root("op1")
	left := root.Child(keyspace.Left)
	right := root.Child(keyspace.Right)
	require.NotEqual(t, left.Prefix(), right.Prefix())
}
