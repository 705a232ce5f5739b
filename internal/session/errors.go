package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition matches every *InvalidStateTransitionError.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrInsufficientStake matches every *InsufficientStakeError.
	ErrInsufficientStake = errors.New("session: insufficient balance for stake")
	// ErrGateClosed matches every *GateClosedError.
	ErrGateClosed = errors.New("session: daily gate closed")

	ErrInvalidConfig   = errors.New("session: invalid config")
	ErrInvalidArgument = errors.New("session: invalid argument")
	ErrUnknownEntry    = errors.New("session: unknown prize entry")
)

// InvalidStateTransitionError reports an operation attempted in a state
// that does not allow it, such as resolving before Start.
type InvalidStateTransitionError struct {
	Op   string
	From Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("session: cannot %s while %s", e.Op, e.From)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// InsufficientStakeError is returned by Start when the caller's reported
// balance does not cover the stake.
type InsufficientStakeError struct {
	Stake   int64
	Balance int64
}

func (e *InsufficientStakeError) Error() string {
	return fmt.Sprintf("session: stake %d exceeds balance %d", e.Stake, e.Balance)
}

func (e *InsufficientStakeError) Is(target error) bool {
	return target == ErrInsufficientStake
}

// GateClosedError is returned by Start when a daily-gated game was already
// started since the last reset.
type GateClosedError struct {
	LastStart time.Time
}

func (e *GateClosedError) Error() string {
	return fmt.Sprintf("session: already played since %s", e.LastStart.Format(time.RFC3339))
}

func (e *GateClosedError) Is(target error) bool {
	return target == ErrGateClosed
}
