package dataflowpb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/dataflowpb"
)

func TestEpochRoundTrip(t *testing.T) {
	e := barrier.Epoch{Curr: 42, Prev: 41}
	buf := dataflowpb.EncodeEpoch(nil, e)
	got, err := dataflowpb.DecodeEpoch(buf)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestEpochZeroRoundTrips(t *testing.T) {
	buf := dataflowpb.EncodeEpoch(nil, barrier.Epoch{})
	got, err := dataflowpb.DecodeEpoch(buf)
	require.NoError(t, err)
	require.Equal(t, barrier.Epoch{}, got)
}

func TestMutationRoundTrip(t *testing.T) {
	m := barrier.Mutation{
		Kind:       barrier.MutationUpdate,
		ActorIDs:   []int32{1, 2, -3},
		Dispatcher: map[int32]int32{1: 10, 2: 20},
	}
	buf := dataflowpb.EncodeMutation(nil, m)
	got, err := dataflowpb.DecodeMutation(buf)
	require.NoError(t, err)
	require.Equal(t, m.Kind, got.Kind)
	require.Equal(t, m.ActorIDs, got.ActorIDs)
	require.Equal(t, m.Dispatcher, got.Dispatcher)
}

func TestBarrierRoundTrip(t *testing.T) {
	b := barrier.Barrier{
		Epoch:    barrier.Epoch{Curr: 7, Prev: 6},
		Mutation: barrier.Mutation{Kind: barrier.MutationStop, ActorIDs: []int32{5}},
		SpanName: "span-1",
	}
	buf := dataflowpb.EncodeBarrier(nil, b)
	got, err := dataflowpb.DecodeBarrier(buf)
	require.NoError(t, err)
	require.Equal(t, b.Epoch, got.Epoch)
	require.Equal(t, b.Mutation.Kind, got.Mutation.Kind)
	require.Equal(t, b.Mutation.ActorIDs, got.Mutation.ActorIDs)
	require.Equal(t, b.SpanName, got.SpanName)
}

func TestEnvelopeRoundTripsChunk(t *testing.T) {
	env := dataflowpb.ChunkEnvelope([]byte(`{"op":"insert"}`))
	buf := dataflowpb.EncodeEnvelope(nil, env)

	got, err := dataflowpb.DecodeEnvelope(buf)
	require.NoError(t, err)
	require.False(t, got.IsBarrier())
	require.Equal(t, env.Chunk, got.Chunk)
}

func TestEnvelopeRoundTripsBarrier(t *testing.T) {
	b := barrier.New(3, 4)
	env := dataflowpb.BarrierEnvelope(b)
	buf := dataflowpb.EncodeEnvelope(nil, env)

	got, err := dataflowpb.DecodeEnvelope(buf)
	require.NoError(t, err)
	require.True(t, got.IsBarrier())
	require.Equal(t, b.Epoch, got.Barrier.Epoch)
}

func TestDecodeEpochRejectsMalformed(t *testing.T) {
	_, err := dataflowpb.DecodeEpoch([]byte{0xFF})
	require.Error(t, err)
}
