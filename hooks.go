package writebehind

// Hooks are lightweight callbacks for high-signal queue events.
// Implementations MUST be cheap and non-blocking: they are called from
// producer goroutines and from bucket workers.
type Hooks interface {
	// Enqueue was refused.
	// reason ∈ {"queue_full", "unavailable"}
	Rejected(key, reason string)

	// A pending operation for key was replaced by a newer one.
	Coalesced(key string)

	// n operations of kind reached the writer successfully.
	Delivered(kind Kind, n int)

	// A writer call failed and will be attempted again.
	DeliveryRetry(kind Kind, n, attempt int, err error)

	// n operations were dropped after retries ran out or on shutdown.
	Discarded(kind Kind, n int, err error)

	// Stop gave up waiting; pending operations are being discarded.
	DrainTimeout(pending int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Rejected(string, string)             {}
func (NopHooks) Coalesced(string)                    {}
func (NopHooks) Delivered(Kind, int)                 {}
func (NopHooks) DeliveryRetry(Kind, int, int, error) {}
func (NopHooks) Discarded(Kind, int, error)          {}
func (NopHooks) DrainTimeout(int)                    {}
