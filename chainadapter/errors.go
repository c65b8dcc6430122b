package chainadapter

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrorKind enumerates the §7 error taxonomy as it applies to the Adapter.
type ErrorKind int

const (
	// ErrTransient is a retried-internally failure (RPC timeout,
	// connection drop).
	ErrTransient ErrorKind = iota

	// ErrSubmitExhausted means submission retries were exhausted.
	ErrSubmitExhausted

	// ErrDecode means a structurally invalid chain response was
	// received; fatal for that call, the Ingestor must not advance its
	// cursor past the offending block.
	ErrDecode

	// ErrInvariantBreach means an on-chain observation violates one of
	// §3.2's invariants (hashlock/amount mismatch, timelock skew).
	ErrInvariantBreach

	// ErrCapacity means a submission cannot proceed for want of resources
	// the adapter doesn't control (insufficient spendable balance, the
	// bounded concurrent-submission counter of §4.4 exhausted).
	ErrCapacity

	// ErrFatal means the adapter cannot operate at all (bad config, key
	// unavailable).
	ErrFatal
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "Transient"
	case ErrSubmitExhausted:
		return "SubmitExhausted"
	case ErrDecode:
		return "Decode"
	case ErrInvariantBreach:
		return "InvariantBreach"
	case ErrCapacity:
		return "Capacity"
	case ErrFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// AdapterError is the typed error every ChainAdapter method returns on
// failure, carrying enough context for the Resolver and Ingestor to decide
// how to react per §7's propagation rules.
type AdapterError struct {
	Kind  ErrorKind
	Chain ChainID
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("chainadapter[%s] %s: %s: %v", e.Chain, e.Op, e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps err with a stack trace (via go-errors/errors, as
// daemon/lnd.go does) and tags it with kind/chain/op for logging and
// propagation decisions.
func NewAdapterError(kind ErrorKind, chain ChainID, op string, err error) *AdapterError {
	return &AdapterError{
		Kind:  kind,
		Chain: chain,
		Op:    op,
		Err:   goerrors.Wrap(err, 1),
	}
}
