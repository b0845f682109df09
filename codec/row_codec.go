package codec

import (
	"encoding/binary"
	"fmt"
	"sort"

	"storj.io/dataflow/row"
)

// KV is a single key-value pair produced by encoding one cell.
type KV struct {
	Key   []byte
	Value []byte
}

// EncodeRowCells splits r into one KV pair per column, keyed by
// prefix || column_index, per the cell-based encoding in spec §4.4.
func EncodeRowCells(prefix []byte, r row.Row) []KV {
	out := make([]KV, len(r))
	for i, d := range r {
		key := make([]byte, 0, len(prefix)+4)
		key = append(key, prefix...)
		key = append(key, SerializeCellIdx(uint32(i))...)
		out[i] = KV{Key: key, Value: SerializeCell(d)}
	}
	return out
}

// CellKeys returns the column-index keys (without decoding values) used to
// delete every cell of a row under prefix.
func CellKeys(prefix []byte, schemaLen int) [][]byte {
	out := make([][]byte, schemaLen)
	for i := 0; i < schemaLen; i++ {
		key := make([]byte, 0, len(prefix)+4)
		key = append(key, prefix...)
		key = append(key, SerializeCellIdx(uint32(i))...)
		out[i] = key
	}
	return out
}

// DecodeRowFromCells reassembles a Row from the cells scanned under a
// single row's prefix. cells need not be sorted; schemaLen is the expected
// column count used to size and validate the result.
func DecodeRowFromCells(prefix []byte, cells []KV, schemaLen int) (row.Row, error) {
	sort.Slice(cells, func(i, j int) bool {
		return string(cells[i].Key) < string(cells[j].Key)
	})
	r := make(row.Row, schemaLen)
	found := make([]bool, schemaLen)
	for _, kv := range cells {
		if len(kv.Key) < len(prefix)+4 {
			return nil, fmt.Errorf("codec: cell key too short")
		}
		idxBytes := kv.Key[len(kv.Key)-4:]
		idx := int(binary.BigEndian.Uint32(idxBytes))
		if idx < 0 || idx >= schemaLen {
			return nil, fmt.Errorf("codec: cell column index %d out of range", idx)
		}
		d, err := DeserializeCell(kv.Value)
		if err != nil {
			return nil, err
		}
		r[idx] = d
		found[idx] = true
	}
	for i, ok := range found {
		if !ok {
			return nil, fmt.Errorf("codec: missing cell for column %d under prefix", i)
		}
	}
	return r, nil
}
