package streamchunk

// Op describes the effect of one (op, row) pair on the downstream multiset.
type Op uint8

const (
	// Insert adds one occurrence of the row.
	Insert Op = iota
	// Delete removes one occurrence of the row.
	Delete
	// UpdateInsert is the insert half of a logical update; it MUST be
	// preceded by an UpdateDelete for the same key within the same chunk
	// and MUST NOT be separated from it by a barrier.
	UpdateInsert
	// UpdateDelete is the delete half of a logical update.
	UpdateDelete
)

func (op Op) String() string {
	switch op {
	case Insert:
		return "Insert"
	case Delete:
		return "Delete"
	case UpdateInsert:
		return "UpdateInsert"
	case UpdateDelete:
		return "UpdateDelete"
	default:
		return "Op(?)"
	}
}

// IsInsert reports whether op adds a row occurrence (Insert or UpdateInsert).
func (op Op) IsInsert() bool { return op == Insert || op == UpdateInsert }

// IsDelete reports whether op removes a row occurrence (Delete or UpdateDelete).
func (op Op) IsDelete() bool { return op == Delete || op == UpdateDelete }
