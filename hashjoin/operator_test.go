package hashjoin_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"storj.io/dataflow/align"
	"storj.io/dataflow/barrier"
	"storj.io/dataflow/datum"
	"storj.io/dataflow/hashjoin"
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/metrics"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore/boltstore"
	"storj.io/dataflow/statestore/memstore"
	"storj.io/dataflow/streamchunk"
)

// sampleCount gathers reg and returns how many individual metric samples
// (summed across label combinations) the named family has recorded.
func sampleCount(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		return len(f.GetMetric())
	}
	return 0
}

// fixedInput replays a canned sequence of align.Message values, then
// blocks until ctx is cancelled, matching the Input contract's "pulled one
// at a time until error or cancellation" shape without needing a real
// upstream executor in these tests.
//
// Each message beyond readiness is gated behind a permit so tests can pin
// down which side's message the aligner observes first: the aligner reads
// both inputs concurrently on their own goroutines, so without gating, the
// relative order of the first message from each side is an unspecified
// race.
type fixedInput struct {
	msgs []align.Message
	gate chan struct{}
	i    int
}

func newFixedInput(msgs ...align.Message) *fixedInput {
	return &fixedInput{msgs: msgs, gate: make(chan struct{}, len(msgs)+1)}
}

// release lets the input return its next n messages.
func (f *fixedInput) release(n int) {
	for i := 0; i < n; i++ {
		f.gate <- struct{}{}
	}
}

func (f *fixedInput) Next(ctx context.Context) (align.Message, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.i < len(f.msgs) {
		m := f.msgs[f.i]
		f.i++
		return m, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func chunkMsg(schema row.Schema, op streamchunk.Op, r row.Row) align.Message {
	b := streamchunk.NewBuilder(schema, 1)
	b.Append(op, r)
	return align.ChunkMessage{Chunk: b.Build()}
}

func barrierMsg(curr, prev uint64) align.Message {
	return align.BarrierMessage{Barrier: barrier.New(prev, curr)}
}

func drainChunk(t *testing.T, op *hashjoin.Operator, ctx context.Context) *streamchunk.Chunk {
	t.Helper()
	msg, err := op.Next(ctx)
	require.NoError(t, err)
	cm, ok := msg.(align.ChunkMessage)
	require.Truef(t, ok, "expected ChunkMessage, got %T", msg)
	return cm.Chunk
}

func drainBarrier(t *testing.T, op *hashjoin.Operator, ctx context.Context) barrier.Barrier {
	t.Helper()
	msg, err := op.Next(ctx)
	require.NoError(t, err)
	bm, ok := msg.(align.BarrierMessage)
	require.Truef(t, ok, "expected BarrierMessage, got %T", msg)
	return bm.Barrier
}

var (
	leftSchema  = row.Schema{datum.KindInt64, datum.KindInt64} // id, val
	rightSchema = row.Schema{datum.KindInt64, datum.KindInt64} // id, val
)

func newTestOperator(t *testing.T, jt hashjoin.JoinType, left, right align.Input) *hashjoin.Operator {
	t.Helper()
	ctx := context.Background()
	ks := keyspace.Root("test")
	leftCfg := hashjoin.SideConfig{
		Schema:     leftSchema,
		KeyIndices: []int{0},
		PKIndices:  []int{0},
		Keyspace:   ks.Child(keyspace.Left),
		Store:      memstore.New(),
	}
	rightCfg := hashjoin.SideConfig{
		Schema:     rightSchema,
		KeyIndices: []int{0},
		PKIndices:  []int{0},
		Keyspace:   ks.Child(keyspace.Right),
		Store:      memstore.New(),
	}
	op, err := hashjoin.New(ctx, jt, left, right, leftCfg, rightCfg, nil)
	require.NoError(t, err)
	t.Cleanup(op.Close)
	return op
}

// S1: Inner join, staged arrivals within one epoch -- a left row with no
// match yet yields nothing, then the matching right row yields exactly one
// combined row.
func TestOperatorInnerStagedArrivals(t *testing.T) {
	ctx := context.Background()
	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(10))),
	)
	right := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(20))),
	)
	op := newTestOperator(t, hashjoin.Inner, left, right)

	left.release(1)
	c1 := drainChunk(t, op, ctx)
	require.Equal(t, 0, c1.Cardinality())

	right.release(1)
	c2 := drainChunk(t, op, ctx)
	require.Equal(t, 1, c2.Cardinality())
	require.Equal(t, streamchunk.Insert, c2.Ops[0])
	require.True(t, c2.Rows[0].Equal(row.New(datum.Int64(1), datum.Int64(10), datum.Int64(1), datum.Int64(20))))
}

// S2: Inner join across a barrier -- the aligned barrier is forwarded, and
// a left row and a matching right row that both arrive in the next epoch
// still join.
func TestOperatorInnerAcrossBarrier(t *testing.T) {
	ctx := context.Background()
	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(10))),
		barrierMsg(1, 0),
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(2), datum.Int64(30))),
	)
	right := newFixedInput(
		barrierMsg(1, 0),
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(2), datum.Int64(40))),
	)
	op := newTestOperator(t, hashjoin.Inner, left, right)

	left.release(1)
	c1 := drainChunk(t, op, ctx) // left id=1, unmatched
	require.Equal(t, 0, c1.Cardinality())

	left.release(1)
	right.release(1)
	b := drainBarrier(t, op, ctx)
	require.Equal(t, uint64(1), b.Epoch.Curr)

	left.release(1)
	c2 := drainChunk(t, op, ctx) // left id=2, unmatched yet
	require.Equal(t, 0, c2.Cardinality())

	right.release(1)
	c3 := drainChunk(t, op, ctx) // right id=2, matches left id=2 inserted after the barrier
	require.Equal(t, 1, c3.Cardinality())
	require.True(t, c3.Rows[0].Equal(row.New(datum.Int64(2), datum.Int64(30), datum.Int64(2), datum.Int64(40))))
}

// S3: LeftOuter join -- an unmatched left row is emitted NULL-padded on the
// right, and is retracted/replaced once the matching right row arrives.
func TestOperatorLeftOuterNullPadThenRetract(t *testing.T) {
	ctx := context.Background()
	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(2), datum.Int64(5))),
	)
	right := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(2), datum.Int64(7))),
	)
	op := newTestOperator(t, hashjoin.LeftOuter, left, right)

	left.release(1)
	c1 := drainChunk(t, op, ctx)
	require.Equal(t, 1, c1.Cardinality())
	require.Equal(t, streamchunk.Insert, c1.Ops[0])
	require.True(t, c1.Rows[0].Equal(row.New(datum.Int64(2), datum.Int64(5), datum.Null(), datum.Null())))
	require.True(t, c1.Rows[0][2].IsNull())
	require.True(t, c1.Rows[0][3].IsNull())

	right.release(1)
	c2 := drainChunk(t, op, ctx)
	require.Equal(t, 2, c2.Cardinality())
	require.Equal(t, streamchunk.UpdateDelete, c2.Ops[0])
	require.True(t, c2.Rows[0][2].IsNull())
	require.Equal(t, streamchunk.UpdateInsert, c2.Ops[1])
	require.True(t, c2.Rows[1].Equal(row.New(datum.Int64(2), datum.Int64(5), datum.Int64(2), datum.Int64(7))))
}

// S4: RightOuter join is the mirror image of S3 -- an unmatched right row
// is NULL-padded on the left.
func TestOperatorRightOuterNullPad(t *testing.T) {
	ctx := context.Background()
	left := newFixedInput()
	right := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(9), datum.Int64(1))),
	)
	op := newTestOperator(t, hashjoin.RightOuter, left, right)

	right.release(1)
	c := drainChunk(t, op, ctx)
	require.Equal(t, 1, c.Cardinality())
	require.True(t, c.Rows[0][0].IsNull())
	require.True(t, c.Rows[0][1].IsNull())
	require.True(t, c.Rows[0][2].Equal(datum.Int64(9)))
	require.True(t, c.Rows[0][3].Equal(datum.Int64(1)))
}

// S5: FullOuter join NULL-pads both directions for unmatched rows on
// either side.
func TestOperatorFullOuterBothDirections(t *testing.T) {
	ctx := context.Background()
	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(1))),
	)
	right := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(2), datum.Int64(2))),
	)
	op := newTestOperator(t, hashjoin.FullOuter, left, right)

	left.release(1)
	c1 := drainChunk(t, op, ctx)
	require.Equal(t, 1, c1.Cardinality())
	require.True(t, c1.Rows[0][2].IsNull())

	right.release(1)
	c2 := drainChunk(t, op, ctx)
	require.Equal(t, 1, c2.Cardinality())
	require.True(t, c2.Rows[0][0].IsNull())
}

// S6: persistence round trip -- after a flush to a durable boltstore, a
// freshly-constructed operator backed by the same on-disk stores resumes
// with the prior epoch visible and matches a row against state it never
// saw inserted in this process.
func TestOperatorPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	leftPath := dir + "/left.db"
	rightPath := dir + "/right.db"

	leftStore, err := boltstore.New(leftPath, "")
	require.NoError(t, err)
	rightStore, err := boltstore.New(rightPath, "")
	require.NoError(t, err)

	ks := keyspace.Root("persist")
	leftCfg := hashjoin.SideConfig{
		Schema: leftSchema, KeyIndices: []int{0}, PKIndices: []int{0},
		Keyspace: ks.Child(keyspace.Left), Store: leftStore,
	}
	rightCfg := hashjoin.SideConfig{
		Schema: rightSchema, KeyIndices: []int{0}, PKIndices: []int{0},
		Keyspace: ks.Child(keyspace.Right), Store: rightStore,
	}

	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(5), datum.Int64(50))),
		barrierMsg(1, 0),
	)
	right := newFixedInput(
		barrierMsg(1, 0),
	)
	op1, err := hashjoin.New(ctx, hashjoin.Inner, left, right, leftCfg, rightCfg, nil)
	require.NoError(t, err)

	left.release(1)
	_ = drainChunk(t, op1, ctx) // left id=5, unmatched
	left.release(1)
	right.release(1)
	b := drainBarrier(t, op1, ctx)
	require.Equal(t, uint64(1), b.Epoch.Curr)
	op1.Close()
	require.NoError(t, leftStore.Close())
	require.NoError(t, rightStore.Close())

	leftStore2, err := boltstore.New(leftPath, "")
	require.NoError(t, err)
	defer leftStore2.Close()
	rightStore2, err := boltstore.New(rightPath, "")
	require.NoError(t, err)
	defer rightStore2.Close()

	epoch, err := leftStore2.LastIngestedEpoch(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), epoch.Curr)

	leftCfg2 := leftCfg
	leftCfg2.Store = leftStore2
	rightCfg2 := rightCfg
	rightCfg2.Store = rightStore2

	left2 := newFixedInput()
	right2 := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(5), datum.Int64(99))),
	)
	op2, err := hashjoin.New(ctx, hashjoin.Inner, left2, right2, leftCfg2, rightCfg2, nil)
	require.NoError(t, err)
	defer op2.Close()

	right2.release(1)
	c := drainChunk(t, op2, ctx)
	require.Equal(t, 1, c.Cardinality())
	require.True(t, c.Rows[0].Equal(row.New(datum.Int64(5), datum.Int64(50), datum.Int64(5), datum.Int64(99))))
}

// An aligned barrier must observe both the align-latency histogram and,
// per side, the flush-duration histogram; a processed chunk must observe
// the rows-emitted counter.
func TestOperatorObservesMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg, "test")

	ks := keyspace.Root("metrics")
	leftCfg := hashjoin.SideConfig{
		Schema: leftSchema, KeyIndices: []int{0}, PKIndices: []int{0},
		Keyspace: ks.Child(keyspace.Left), Store: memstore.New(),
	}
	rightCfg := hashjoin.SideConfig{
		Schema: rightSchema, KeyIndices: []int{0}, PKIndices: []int{0},
		Keyspace: ks.Child(keyspace.Right), Store: memstore.New(),
	}

	left := newFixedInput(
		chunkMsg(leftSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(10))),
		barrierMsg(1, 0),
	)
	right := newFixedInput(
		chunkMsg(rightSchema, streamchunk.Insert, row.New(datum.Int64(1), datum.Int64(20))),
		barrierMsg(1, 0),
	)
	op, err := hashjoin.New(ctx, hashjoin.Inner, left, right, leftCfg, rightCfg, collectors)
	require.NoError(t, err)
	t.Cleanup(op.Close)

	// The right row lands first and has nothing to match yet, so it emits
	// no rows and the counter stays unobserved.
	right.release(1)
	c1 := drainChunk(t, op, ctx)
	require.Equal(t, 0, c1.Cardinality())
	require.Equal(t, 0, sampleCount(t, reg, "test_join_rows_emitted_total"))

	// The left row matches the buffered right row, emitting one row and
	// observing the counter.
	left.release(1)
	c2 := drainChunk(t, op, ctx)
	require.Equal(t, 1, c2.Cardinality())
	require.Equal(t, 1, sampleCount(t, reg, "test_join_rows_emitted_total"))

	left.release(1)
	right.release(1)
	_ = drainBarrier(t, op, ctx)
	require.Equal(t, 1, sampleCount(t, reg, "test_barrier_align_latency_seconds"))
	require.Equal(t, 2, sampleCount(t, reg, "test_join_flush_duration_seconds"))
}
