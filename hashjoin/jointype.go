// Package hashjoin implements the incremental hash join operator: the
// orchestrator that owns both sides' ManagedJoinState maps, consumes a
// BarrierAligner, and produces a consistent output change stream.
package hashjoin

import "storj.io/dataflow/align"

// JoinType selects one of the four supported equi-join variants. The four
// variants differ only in the two predicates below; this module branches
// on the runtime value rather than monomorphizing per spec §9's note that
// both strategies are acceptable.
type JoinType uint8

// Supported join types.
const (
	Inner JoinType = iota
	LeftOuter
	RightOuter
	FullOuter
)

func (t JoinType) String() string {
	switch t {
	case Inner:
		return "Inner"
	case LeftOuter:
		return "LeftOuter"
	case RightOuter:
		return "RightOuter"
	case FullOuter:
		return "FullOuter"
	default:
		return "JoinType(?)"
	}
}

func opposite(s align.Side) align.Side {
	if s == align.Left {
		return align.Right
	}
	return align.Left
}

// outerKeep reports whether unmatched rows on side s must be emitted
// NULL-padded for join type t.
func outerKeep(t JoinType, s align.Side) bool {
	switch t {
	case FullOuter:
		return true
	case LeftOuter:
		return s == align.Left
	case RightOuter:
		return s == align.Right
	default: // Inner
		return false
	}
}

// outerNull reports whether, when side s receives its first row for a key,
// previously-emitted NULL-padded rows attributable to the opposite side's
// earlier unmatched emissions must be retracted. This is the opposite
// side's outerKeep flag: the rows being retracted were null-padded on s's
// position precisely because the opposite side was keeping unmatched rows
// before s ever had data for this key.
func outerNull(t JoinType, s align.Side) bool {
	return outerKeep(t, opposite(s))
}
