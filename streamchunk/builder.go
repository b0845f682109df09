package streamchunk

import "storj.io/dataflow/row"

// Builder accumulates (op, row) pairs into a Chunk. It is created per
// output batch, filled, and consumed exactly once via Build.
//
// Builder pre-sizes its backing slices to the capacity hint given at
// construction (typically the cardinality of the input chunk that is
// driving the output), but it grows past that hint without error: outer
// join retractions can emit two output rows (an UpdateDelete/UpdateInsert
// pair) for a single input row, so the actual row count may exceed the
// hint.
type Builder struct {
	schema row.Schema
	ops    []Op
	rows   []row.Row
}

// NewBuilder creates a Builder for the given output schema, pre-sized to
// capacity rows.
func NewBuilder(schema row.Schema, capacity int) *Builder {
	if capacity < 0 {
		capacity = 0
	}
	return &Builder{
		schema: schema,
		ops:    make([]Op, 0, capacity),
		rows:   make([]row.Row, 0, capacity),
	}
}

// Append adds one (op, row) pair to the builder.
func (b *Builder) Append(op Op, r row.Row) {
	b.ops = append(b.ops, op)
	b.rows = append(b.rows, r)
}

// Len returns the number of pairs appended so far.
func (b *Builder) Len() int { return len(b.ops) }

// Build consumes the builder and returns the finished chunk. The builder
// must not be used afterward.
func (b *Builder) Build() *Chunk {
	return &Chunk{
		Schema: b.schema,
		Ops:    b.ops,
		Rows:   b.rows,
	}
}
