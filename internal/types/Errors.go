package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by fetchers, adapters and the action dispatcher.
var (
	ErrNetwork          = errors.New("network error")
	ErrNotFound         = errors.New("not found")
	ErrPoolNotFound     = fmt.Errorf("pool %w", ErrNotFound)
	ErrPositionNotFound = fmt.Errorf("position %w", ErrNotFound)
	ErrNoRouteFound     = errors.New("no swap route found")
	ErrWalletRejected   = errors.New("wallet rejected the transaction")
	ErrMalformedData    = errors.New("malformed data")

	ErrWalletDisconnected = errors.New("wallet is not connected")
	ErrInvalidAmount      = errors.New("amount is invalid")
	ErrNothingToCollect   = errors.New("no rewards owed")
	ErrNothingToWithdraw  = errors.New("position has no liquidity")
	ErrActionInFlight     = errors.New("identical action already in flight")
)

// NetworkError is a transport failure against the node, the statistics
// endpoint, the router or the wallet bridge. ID names the entity being
// fetched when there is one.
type NetworkError struct {
	Op  string
	ID  string
	Err error
}

func NewNetworkError(op, id string, err error) *NetworkError {
	return &NetworkError{Op: op, ID: id, Err: err}
}

func (e *NetworkError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// ActionError records which phase of which action failed.
type ActionError struct {
	ActionID string
	Kind     ActionKind
	Phase    ActionPhase
	Target   string
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s failed during %s: %v", e.Kind, e.Target, e.Phase, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsBenign reports whether err is a user cancellation rather than a failure.
func IsBenign(err error) bool {
	return errors.Is(err, ErrWalletRejected)
}
