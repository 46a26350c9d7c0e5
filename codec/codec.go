// Package codec turns values into bytes and back. Snapshots, the Redis
// writer and the hand-off path all serialize values through a Codec, which
// is also what guarantees that a captured value no longer shares memory with
// the live one.
package codec

// Codec encodes/decodes values V to []byte.
// Encode must return bytes the caller may keep; Decode must not retain b.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
