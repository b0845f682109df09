// Package align implements the two-input barrier aligner: it converts two
// independently-produced streams of Chunk|Barrier messages into one
// ordered stream of Left(chunk) | Right(chunk) | AlignedBarrier(b) events.
package align

import (
	"context"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/streamchunk"
)

// Message is one item read from an upstream input: either a change chunk
// or a barrier.
type Message interface {
	isMessage()
}

// ChunkMessage carries a change chunk.
type ChunkMessage struct {
	Chunk *streamchunk.Chunk
}

func (ChunkMessage) isMessage() {}

// BarrierMessage carries a barrier.
type BarrierMessage struct {
	Barrier barrier.Barrier
}

func (BarrierMessage) isMessage() {}

// Input is the upstream executor contract: each input is pulled one
// message at a time, in order, until it returns an error or the context
// is cancelled.
type Input interface {
	Next(ctx context.Context) (Message, error)
}
