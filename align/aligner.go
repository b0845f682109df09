package align

import (
	"context"

	"github.com/zeebo/errs"

	"storj.io/dataflow/barrier"
)

// Error is the error class for all aligner protocol violations.
var Error = errs.Class("align")

// Event is one item produced by the Aligner: a chunk attributed to a
// specific side, or a barrier collapsed from both sides' matching-epoch
// barriers.
type Event interface {
	isAlignEvent()
}

// LeftChunk is a chunk observed on the left input.
type LeftChunk struct {
	Chunk ChunkMessage
}

func (LeftChunk) isAlignEvent() {}

// RightChunk is a chunk observed on the right input.
type RightChunk struct {
	Chunk ChunkMessage
}

func (RightChunk) isAlignEvent() {}

// AlignedBarrierEvent is emitted once both sides have delivered a barrier
// with matching epoch.
type AlignedBarrierEvent struct {
	Barrier barrier.Barrier
}

func (AlignedBarrierEvent) isAlignEvent() {}

type readResult struct {
	msg Message
	err error
}

// sideReader pulls one input in its own goroutine and hands each message
// to the Aligner over an unbuffered channel, so the input only ever reads
// one message ahead of what the Aligner has consumed -- a direct pull-
// demand relationship even though the read itself runs on its own
// goroutine (Go has no way to select over two blocking interface calls
// without one).
type sideReader struct {
	input Input
	ch    chan readResult
}

func newSideReader(input Input) *sideReader {
	return &sideReader{input: input, ch: make(chan readResult)}
}

func (r *sideReader) run(ctx context.Context) {
	for {
		msg, err := r.input.Next(ctx)
		select {
		case r.ch <- readResult{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Aligner merges two Input streams per the contract in spec §4.1.
type Aligner struct {
	left, right *sideReader
	cancel      context.CancelFunc

	lastLeftCurr, rightLastCurr uint64
	haveLeftCurr, haveRightCurr bool

	// parkedLeft/parkedRight hold a barrier observed on one side while the
	// aligner waits for the matching barrier on the other side. At most
	// one is non-nil at a time.
	parkedLeft  *barrier.Barrier
	parkedRight *barrier.Barrier
}

// New starts an Aligner over left and right. The returned Aligner owns a
// derived context; dropping it (calling Close) cancels both upstream
// reads.
func New(ctx context.Context, left, right Input) *Aligner {
	cctx, cancel := context.WithCancel(ctx)
	a := &Aligner{
		left:   newSideReader(left),
		right:  newSideReader(right),
		cancel: cancel,
	}
	go a.left.run(cctx)
	go a.right.run(cctx)
	return a
}

// Close cancels both upstream reads. Safe to call multiple times.
func (a *Aligner) Close() {
	a.cancel()
}

// Next returns the next aligned event, or a fatal error on protocol
// violation, upstream error, or context cancellation.
func (a *Aligner) Next(ctx context.Context) (Event, error) {
	for {
		if a.parkedLeft != nil {
			return a.drainUntil(ctx, a.right, Right, a.parkedLeft)
		}
		if a.parkedRight != nil {
			return a.drainUntil(ctx, a.left, Left, a.parkedRight)
		}

		select {
		case res := <-a.left.ch:
			ev, parked, err := a.handle(Left, res)
			if err != nil {
				return nil, err
			}
			if parked {
				continue
			}
			return ev, nil
		case res := <-a.right.ch:
			ev, parked, err := a.handle(Right, res)
			if err != nil {
				return nil, err
			}
			if parked {
				continue
			}
			return ev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Side identifies which input a message or event came from.
type Side uint8

// The two sides of a join.
const (
	Left Side = iota
	Right
)

// handle processes one message read from the given side. It returns
// (event, false, nil) if the message should be forwarded immediately, or
// (nil, true, nil) if the aligner parked waiting for the other side's
// barrier.
func (a *Aligner) handle(side Side, res readResult) (Event, bool, error) {
	if res.err != nil {
		return nil, false, res.err
	}
	switch m := res.msg.(type) {
	case ChunkMessage:
		if side == Left {
			return LeftChunk{Chunk: m}, false, nil
		}
		return RightChunk{Chunk: m}, false, nil
	case BarrierMessage:
		if err := a.checkMonotone(side, m.Barrier); err != nil {
			return nil, false, err
		}
		b := m.Barrier
		if side == Left {
			a.parkedLeft = &b
		} else {
			a.parkedRight = &b
		}
		return nil, true, nil
	default:
		return nil, false, Error.New("unknown message type %T", res.msg)
	}
}

func (a *Aligner) checkMonotone(side Side, b barrier.Barrier) error {
	if side == Left {
		if a.haveLeftCurr && b.Epoch.Curr <= a.lastLeftCurr {
			return Error.New("left barrier epoch regression: %d <= %d", b.Epoch.Curr, a.lastLeftCurr)
		}
		a.lastLeftCurr = b.Epoch.Curr
		a.haveLeftCurr = true
		return nil
	}
	if a.haveRightCurr && b.Epoch.Curr <= a.rightLastCurr {
		return Error.New("right barrier epoch regression: %d <= %d", b.Epoch.Curr, a.rightLastCurr)
	}
	a.rightLastCurr = b.Epoch.Curr
	a.haveRightCurr = true
	return nil
}

// drainUntil forwards chunks from reader (attributed to side) until it
// delivers a barrier, which must match held's epoch exactly; the two
// barriers are then collapsed into one AlignedBarrierEvent.
func (a *Aligner) drainUntil(ctx context.Context, reader *sideReader, side Side, held *barrier.Barrier) (Event, error) {
	select {
	case res := <-reader.ch:
		if res.err != nil {
			return nil, res.err
		}
		switch m := res.msg.(type) {
		case ChunkMessage:
			if side == Left {
				return LeftChunk{Chunk: m}, nil
			}
			return RightChunk{Chunk: m}, nil
		case BarrierMessage:
			if err := a.checkMonotone(side, m.Barrier); err != nil {
				return nil, err
			}
			if m.Barrier.Epoch.Curr != held.Epoch.Curr {
				return nil, Error.New(
					"mismatched barrier epochs across sides: held=%d incoming=%d",
					held.Epoch.Curr, m.Barrier.Epoch.Curr)
			}
			aligned := *held
			a.parkedLeft = nil
			a.parkedRight = nil
			return AlignedBarrierEvent{Barrier: aligned}, nil
		default:
			return nil, Error.New("unknown message type %T", res.msg)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
