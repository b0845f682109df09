// Package streamchunk implements the columnar change-batch that flows
// between dataflow operators.
package streamchunk

import (
	"storj.io/dataflow/row"
)

// Chunk is a batch of (op, row) pairs sharing one column schema. A chunk
// with a nil Vis carries no visibility bitmap (already compacted, or never
// needed one).
type Chunk struct {
	Schema row.Schema
	Ops    []Op
	Rows   []row.Row
	// Vis holds one bit per row; a false entry marks the row as not
	// actually visible to downstream consumers (e.g. it was produced and
	// then retracted within the same micro-batch upstream). nil means all
	// rows are visible.
	Vis []bool
}

// Cardinality returns the number of (op, row) pairs, ignoring visibility.
func (c *Chunk) Cardinality() int { return len(c.Ops) }

// Compact returns a new Chunk with all rows whose visibility bit is false
// dropped, and with Vis set to nil. If c already has no visibility bitmap,
// Compact returns c unchanged.
func (c *Chunk) Compact() *Chunk {
	if c.Vis == nil {
		return c
	}
	out := &Chunk{Schema: c.Schema}
	for i, visible := range c.Vis {
		if !visible {
			continue
		}
		out.Ops = append(out.Ops, c.Ops[i])
		out.Rows = append(out.Rows, c.Rows[i])
	}
	return out
}

// Visible reports whether the i-th row is visible.
func (c *Chunk) Visible(i int) bool {
	if c.Vis == nil {
		return true
	}
	return c.Vis[i]
}
