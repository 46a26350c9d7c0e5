package writebehind

// call is one unit of delivery: a single operation, or a homogeneous batch
// when batch is set.
type call[V any] struct {
	kind  Kind
	batch bool
	slots []*slot[V]
}

func (c call[V]) keys() []string {
	out := make([]string, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.op.Key
	}
	return out
}

// buildCalls splits drained slots by kind, keeping relative order inside each
// kind. With batching each non-empty kind becomes one call (writes before
// deletes); without it every slot is its own call, in drain order.
// A drained set never holds two slots for one key, so splitting cannot
// reorder operations of the same key.
func buildCalls[V any](slots []*slot[V], batching bool) []call[V] {
	if len(slots) == 0 {
		return nil
	}
	if !batching {
		out := make([]call[V], 0, len(slots))
		for _, s := range slots {
			out = append(out, call[V]{kind: s.op.Kind, slots: []*slot[V]{s}})
		}
		return out
	}

	var writes, deletes []*slot[V]
	for _, s := range slots {
		switch s.op.Kind {
		case KindWrite:
			writes = append(writes, s)
		case KindDelete:
			deletes = append(deletes, s)
		default:
			// rejected by Enqueue
		}
	}
	out := make([]call[V], 0, 2)
	if len(writes) > 0 {
		out = append(out, call[V]{kind: KindWrite, batch: true, slots: writes})
	}
	if len(deletes) > 0 {
		out = append(out, call[V]{kind: KindDelete, batch: true, slots: deletes})
	}
	return out
}
