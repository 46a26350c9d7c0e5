package writebehind

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQueueUnavailable is returned by Enqueue once Stop has been called.
	ErrQueueUnavailable = errors.New("writebehind: queue unavailable")
	// ErrRejected is returned when the target bucket is full and the
	// configuration does not allow producers to block.
	ErrRejected = errors.New("writebehind: queue full, operation rejected")
	// ErrDrainTimeout is the discard cause for operations still queued when
	// the Stop timeout ran out.
	ErrDrainTimeout = errors.New("writebehind: drain timeout, operation discarded")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("writebehind: already started")
	// ErrInvalidOperation is returned for an empty key or unknown kind.
	ErrInvalidOperation = errors.New("writebehind: invalid operation")
)

// DeliveryError describes a writer call that failed on every attempt.
// It is handed to OnDiscard for each operation of the failed call.
type DeliveryError struct {
	Kind     Kind
	Keys     []string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	keys := strings.Join(e.Keys, ",")
	if len(e.Keys) > 8 {
		keys = strings.Join(e.Keys[:8], ",") + fmt.Sprintf(",... (%d keys)", len(e.Keys))
	}
	return fmt.Sprintf("writebehind: %s of [%s] failed after %d attempt(s): %v",
		e.Kind, keys, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("writebehind: invalid config %s: %s", e.Field, e.Reason)
}
