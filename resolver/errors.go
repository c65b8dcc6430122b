package resolver

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrorKind mirrors chainadapter.ErrorKind's taxonomy (§7) for failures
// that originate in the Protocol Engine itself rather than in a chain
// call.
type ErrorKind int

const (
	ErrTransient ErrorKind = iota
	ErrInvariantBreach
	ErrCapacity
	ErrFatal
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "Transient"
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

// ResolverError is the typed error every resolver operation returns on
// failure.
type ResolverError struct {
	Kind      ErrorKind
	OrderHash [32]byte
	Op        string
	Err       error
}

// Error implements the error interface.
func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver[%x] %s: %s: %v", e.OrderHash[:4], e.Op, e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// errCapacityExceeded is returned by admit when the pending-order table is
// full and holds no terminal order to evict (§4.3.7).
var errCapacityExceeded = fmt.Errorf("resolver: pending order table full, no terminal order to evict")

// NewResolverError wraps err with a stack trace, matching the
// go-errors/errors convention chainadapter.NewAdapterError uses.
func NewResolverError(kind ErrorKind, orderHash [32]byte, op string, err error) *ResolverError {
	return &ResolverError{
		Kind:      kind,
		OrderHash: orderHash,
		Op:        op,
		Err:       goerrors.Wrap(err, 1),
	}
}
