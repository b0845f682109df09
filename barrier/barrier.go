// Package barrier defines the consistency-marker types shared by the
// aligner, the join operator, and the durable state store.
package barrier

import "fmt"

// Epoch identifies a consistent snapshot boundary. Curr must be strictly
// greater than Prev; epochs are totally ordered by Curr.
type Epoch struct {
	Curr uint64
	Prev uint64
}

// Less reports whether e sorts strictly before other by Curr.
func (e Epoch) Less(other Epoch) bool { return e.Curr < other.Curr }

func (e Epoch) String() string { return fmt.Sprintf("epoch{%d<-%d}", e.Curr, e.Prev) }

// MutationKind tags the variant carried by a Mutation.
type MutationKind uint8

const (
	// MutationNone carries no topology change.
	MutationNone MutationKind = iota
	// MutationStop names actors that should stop after this barrier.
	MutationStop
	// MutationUpdate carries a dispatcher routing update.
	MutationUpdate
	// MutationAdd carries a dispatcher routing addition.
	MutationAdd
)

// Mutation is the optional topology-change payload a Barrier may carry.
// Only the core stream and state layers care that it exists and must be
// forwarded untouched; interpreting it is the job of the (out-of-scope)
// executor/dispatcher layer.
type Mutation struct {
	Kind       MutationKind
	ActorIDs   []int32
	Dispatcher map[int32]int32
}

// Barrier is a control event delimiting a consistent snapshot.
type Barrier struct {
	Epoch    Epoch
	Mutation Mutation
	// SpanName is a trace span identifier carried for downstream tracing
	// systems; this module does not interpret it.
	SpanName string
}

// New creates a barrier advancing from prev to curr with no mutation.
func New(prev, curr uint64) Barrier {
	return Barrier{Epoch: Epoch{Curr: curr, Prev: prev}}
}
