package hashjoin

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"storj.io/dataflow/align"
	"storj.io/dataflow/barrier"
	"storj.io/dataflow/joinstate"
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/metrics"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore"
	"storj.io/dataflow/streamchunk"
)

// Error is the error class for all fatal hash join failures: protocol
// violations, storage failures, and forwarded upstream errors.
var Error = errs.Class("hashjoin")

// SideConfig describes one side's schema, key configuration, keyspace, and
// backing store.
type SideConfig struct {
	Schema     row.Schema
	KeyIndices []int
	PKIndices  []int
	Keyspace   keyspace.Keyspace
	Store      statestore.Store
}

// Operator implements the incremental equi-join over two aligned change
// streams, for one of the four join types in spec §4.3.
//
// Operator is stateless between calls other than its two side maps; it is
// safe to call Next repeatedly from one goroutine only, matching the
// single-threaded cooperative execution model in spec §5.
type Operator struct {
	joinType JoinType

	left, right SideConfig
	leftMap     *joinstate.Map
	rightMap    *joinstate.Map

	aligner *align.Aligner
	metrics *metrics.Collectors
}

// New constructs a hash join operator over leftInput and rightInput, both
// satisfying align.Input, backed by the given per-side configuration. ctx
// bounds the lifetime of the internal aligner's upstream reads; cancelling
// it (or calling Close) tears the operator down.
//
// New consults each side's Store.LastIngestedEpoch to decide whether that
// side's join-state map is starting cold (nothing has ever been ingested,
// so newly-created entries begin Empty) or resuming from a prior run
// (entries begin NotAll, forcing a store scan before trusting any entry is
// empty or complete).
func New(ctx context.Context, jt JoinType, leftInput, rightInput align.Input, left, right SideConfig, collectors *metrics.Collectors) (*Operator, error) {
	if collectors == nil {
		collectors = metrics.NoOp()
	}
	leftResumed, err := resumed(ctx, left.Store)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	rightResumed, err := resumed(ctx, right.Store)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Operator{
		joinType: jt,
		left:     left,
		right:    right,
		leftMap:  joinstate.NewMap(left.Keyspace, len(left.Schema), len(left.PKIndices), leftResumed),
		rightMap: joinstate.NewMap(right.Keyspace, len(right.Schema), len(right.PKIndices), rightResumed),
		aligner:  align.New(ctx, leftInput, rightInput),
		metrics:  collectors,
	}, nil
}

// resumed reports whether store already holds data ingested by a prior
// run, per its last-ingested epoch watermark.
func resumed(ctx context.Context, store statestore.Store) (bool, error) {
	epoch, err := store.LastIngestedEpoch(ctx)
	if err != nil {
		return false, err
	}
	return epoch.Curr != 0, nil
}

// Close tears down the operator's aligner and upstream reads.
func (op *Operator) Close() {
	op.aligner.Close()
}

// Schema is the output row schema: left columns followed by right columns.
func (op *Operator) Schema() row.Schema {
	return op.left.Schema.Concat(op.right.Schema)
}

// side returns the SideConfig/Map pair for the given side, along with the
// opposite side's config and map.
func (op *Operator) side(s align.Side) (cfg SideConfig, m *joinstate.Map, oppCfg SideConfig, oppM *joinstate.Map) {
	if s == align.Left {
		return op.left, op.leftMap, op.right, op.rightMap
	}
	return op.right, op.rightMap, op.left, op.leftMap
}

// combine concatenates uRow/mRow into the left-then-right output order,
// regardless of which side drove the update.
func combine(s align.Side, uRow, mRow row.Row) row.Row {
	if s == align.Left {
		return uRow.Concat(mRow)
	}
	return mRow.Concat(uRow)
}

// Next returns the next output message: a change chunk (possibly with zero
// rows) attributable to one input chunk, or the next aligned barrier.
func (op *Operator) Next(ctx context.Context) (align.Message, error) {
	start := time.Now()
	ev, err := op.aligner.Next(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	switch e := ev.(type) {
	case align.LeftChunk:
		chunk, err := op.processChunk(ctx, align.Left, e.Chunk.Chunk)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return align.ChunkMessage{Chunk: chunk}, nil

	case align.RightChunk:
		chunk, err := op.processChunk(ctx, align.Right, e.Chunk.Chunk)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return align.ChunkMessage{Chunk: chunk}, nil

	case align.AlignedBarrierEvent:
		// The aligner only hands back AlignedBarrierEvent once both sides
		// have delivered a matching barrier. The recorded latency is the
		// wait since this Next call began; time spent in earlier Next calls
		// that forwarded chunks while a barrier was already parked is not
		// included.
		op.metrics.ObserveAlignLatency(time.Since(start))
		if err := op.flush(ctx, e.Barrier.Epoch); err != nil {
			return nil, Error.Wrap(err)
		}
		return align.BarrierMessage{Barrier: e.Barrier}, nil

	default:
		return nil, Error.New("unknown aligner event %T", ev)
	}
}

// processChunk compacts the input chunk and runs the per-row algorithm in
// spec §4.3 over it, returning the output chunk.
func (op *Operator) processChunk(ctx context.Context, side align.Side, chunk *streamchunk.Chunk) (*streamchunk.Chunk, error) {
	chunk = chunk.Compact()

	uCfg, uMap, mCfg, mMap := op.side(side)
	out := streamchunk.NewBuilder(op.Schema(), chunk.Cardinality())

	for i := 0; i < chunk.Cardinality(); i++ {
		r := chunk.Rows[i]
		opKind := chunk.Ops[i]

		key, hasNull := row.KeyOf(r, uCfg.KeyIndices)
		pk, _ := row.KeyOf(r, uCfg.PKIndices)

		var matched []row.Row
		if !hasNull {
			mEntry := mMap.Get(key)
			vals, err := mEntry.Values(ctx, mCfg.Store)
			if err != nil {
				return nil, err
			}
			matched = vals
		}

		uEntry := uMap.Get(key)

		if len(matched) > 0 {
			nullRowUpdated := false
			if opKind.IsInsert() {
				wasEmpty, err := uEntry.IsEmpty(ctx, uCfg.Store)
				if err != nil {
					return nil, err
				}
				uEntry.Insert(pk, r)
				if wasEmpty && outerNull(op.joinType, side) {
					nullU := row.NullPad(len(uCfg.Schema))
					for _, m := range matched {
						out.Append(streamchunk.UpdateDelete, combine(side, nullU, m))
						out.Append(streamchunk.UpdateInsert, combine(side, r, m))
					}
					nullRowUpdated = true
				}
			} else {
				uEntry.Remove(pk)
				becameEmpty, err := uEntry.IsEmpty(ctx, uCfg.Store)
				if err != nil {
					return nil, err
				}
				if becameEmpty && outerNull(op.joinType, side) {
					nullU := row.NullPad(len(uCfg.Schema))
					for _, m := range matched {
						out.Append(streamchunk.UpdateDelete, combine(side, r, m))
						out.Append(streamchunk.UpdateInsert, combine(side, nullU, m))
					}
					nullRowUpdated = true
				}
			}
			if !outerNull(op.joinType, side) || !nullRowUpdated {
				for _, m := range matched {
					out.Append(opKind, combine(side, r, m))
				}
			}
		} else {
			if opKind.IsInsert() {
				uEntry.Insert(pk, r)
			} else {
				uEntry.Remove(pk)
			}
			if outerKeep(op.joinType, side) {
				nullM := row.NullPad(len(mCfg.Schema))
				out.Append(opKind, combine(side, r, nullM))
			}
		}
	}

	built := out.Build()
	counts := make(map[string]int, 4)
	for _, o := range built.Ops {
		counts[o.String()]++
	}
	op.metrics.RowsEmitted(counts)
	return built, nil
}

// flush writes every dirty entry on both sides into one atomic write batch
// per side and ingests both at epoch. A failure here is fatal: the output
// stream has already been shaped around the assumption of persistence.
func (op *Operator) flush(ctx context.Context, epoch barrier.Epoch) error {
	for _, sc := range []struct {
		side align.Side
		cfg  SideConfig
		m    *joinstate.Map
	}{
		{align.Left, op.left, op.leftMap},
		{align.Right, op.right, op.rightMap},
	} {
		start := time.Now()
		batch := sc.cfg.Store.NewBatch()
		sc.m.FlushAll(batch)
		// Ingest unconditionally, even with an empty batch: the epoch
		// watermark must advance every barrier so LastIngestedEpoch lets a
		// restarted operator resume from the right point (spec §8 S6).
		if err := batch.Ingest(ctx, epoch); err != nil {
			return Error.Wrap(err)
		}
		op.metrics.ObserveFlushDuration(sc.side, time.Since(start))
	}
	return nil
}
