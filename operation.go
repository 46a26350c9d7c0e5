package writebehind

import "time"

// Kind tells a write apart from a delete.
type Kind uint8

const (
	KindWrite Kind = iota + 1
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is a single intended mutation of the backing store.
// Value is the zero V for deletes.
type Operation[V any] struct {
	Kind      Kind
	Key       string
	Value     V
	CreatedAt time.Time
}

// WriteOp returns a write of v under key, stamped now.
func WriteOp[V any](key string, v V) Operation[V] {
	return Operation[V]{Kind: KindWrite, Key: key, Value: v, CreatedAt: time.Now()}
}

// DeleteOp returns a delete of key, stamped now.
func DeleteOp[V any](key string) Operation[V] {
	return Operation[V]{Kind: KindDelete, Key: key, CreatedAt: time.Now()}
}

func (op Operation[V]) valid() bool {
	return op.Key != "" && (op.Kind == KindWrite || op.Kind == KindDelete)
}
