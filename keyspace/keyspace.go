// Package keyspace implements the hierarchically prefixed namespace the
// join state and the mview writer address the key-value store through.
package keyspace

import "encoding/binary"

// Keyspace is an opaque, hierarchically composed byte prefix. The zero
// value is the root keyspace (empty prefix).
type Keyspace struct {
	prefix []byte
}

// Root returns the base keyspace for a given name, typically the plan
// node's unique operator ID.
func Root(name string) Keyspace {
	return Keyspace{prefix: []byte(name)}
}

// Child derives a new keyspace by appending a length-prefixed segment, so
// that Child("a").Child("bc") never collides with Child("ab").Child("c").
func (k Keyspace) Child(segment string) Keyspace {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(segment)))
	out := make([]byte, 0, len(k.prefix)+4+len(segment))
	out = append(out, k.prefix...)
	out = append(out, lenBuf[:]...)
	out = append(out, segment...)
	return Keyspace{prefix: out}
}

// Prefix returns the raw byte prefix this keyspace represents. Callers
// must not mutate the returned slice.
func (k Keyspace) Prefix() []byte { return k.prefix }

// Key concatenates the keyspace's prefix with the given key parts,
// producing a fully-qualified store key.
func (k Keyspace) Key(parts ...[]byte) []byte {
	n := len(k.prefix)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, k.prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Left and Right are the two fixed child-segment names the hash join
// operator derives its per-side keyspaces from.
const (
	Left  = "l"
	Right = "r"
)
