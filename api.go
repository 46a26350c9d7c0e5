package writebehind

// Options configure a Coordinator. Only Writer is required.
type Options[V any] struct {
	// Required
	Writer Writer[V]

	Name   string // shows up in logs; e.g. the cache name
	Config Config // zero fields take defaults
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// OnDiscard is called once per operation that is dropped, either after
	// retries ran out (cause is a *DeliveryError) or because Stop timed out
	// (cause is ErrDrainTimeout). It runs on a worker goroutine.
	OnDiscard func(op Operation[V], cause error)

	// Filter may drop or rewrite a drained chunk before delivery. It must not
	// return operations for keys that were not in its input; keys it leaves
	// out count as delivered. It runs on a worker goroutine. If it panics,
	// the chunk is delivered unfiltered.
	Filter func(ops []Operation[V]) []Operation[V]
}

// State is the Coordinator lifecycle: Created -> Running -> Draining -> Stopped.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
