package writebehind

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/writebehind/codec"
	"github.com/unkn0wn-root/writebehind/internal/wire"
)

// EncodeOperation renders op in the hand-off wire form used to move queued
// work between nodes of one deployment. The value goes through c; deletes
// carry no payload.
func EncodeOperation[V any](c codec.Codec[V], op Operation[V]) ([]byte, error) {
	if !op.valid() {
		return nil, ErrInvalidOperation
	}
	var payload []byte
	if op.Kind == KindWrite {
		var err error
		if payload, err = c.Encode(op.Value); err != nil {
			return nil, fmt.Errorf("writebehind: encode value of %q: %w", op.Key, err)
		}
	}
	created := int64(0)
	if !op.CreatedAt.IsZero() {
		created = op.CreatedAt.UnixNano()
	}
	return wire.EncodeOp(wire.Op{Kind: byte(op.Kind), Key: op.Key, Created: created, Payload: payload})
}

// DecodeOperation parses a frame produced by EncodeOperation.
func DecodeOperation[V any](c codec.Codec[V], b []byte) (Operation[V], error) {
	w, err := wire.DecodeOp(b)
	if err != nil {
		return Operation[V]{}, err
	}
	op := Operation[V]{Kind: Kind(w.Kind), Key: w.Key}
	if w.Created != 0 {
		op.CreatedAt = time.Unix(0, w.Created)
	}
	if !op.valid() {
		return Operation[V]{}, wire.ErrCorrupt
	}
	if op.Kind == KindWrite {
		if op.Value, err = c.Decode(w.Payload); err != nil {
			return Operation[V]{}, fmt.Errorf("writebehind: decode value of %q: %w", op.Key, err)
		}
	}
	return op, nil
}
