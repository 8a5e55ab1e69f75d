package escrow

import "errors"

// Guard violations surface as one of these sentinels, wrapped with call
// context. Callers branch with errors.Is; nothing is silently swallowed and
// the engine never retries on a caller's behalf.
var (
	// ErrInvalidConfiguration reports bad registry constructor arguments.
	ErrInvalidConfiguration = errors.New("escrow: invalid configuration")
	// ErrInvalidOrderParameters reports bad CreateOrder or fund arguments.
	ErrInvalidOrderParameters = errors.New("escrow: invalid order parameters")
	// ErrIndexOutOfRange reports a directory lookup past the end.
	ErrIndexOutOfRange = errors.New("escrow: index out of range")
	// ErrOrderNotFound reports a lookup for an identifier the registry never minted.
	ErrOrderNotFound = errors.New("escrow: order not found")
	// ErrUnauthorized reports a caller lacking the role a transition requires.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrInvalidStateTransition reports an operation attempted from a state
	// that does not permit it, including a reentrant call into an order with
	// a transition already in flight.
	ErrInvalidStateTransition = errors.New("escrow: invalid state transition")
	// ErrFundingExceedsTarget reports a fund call that would push the funded
	// unit count past the order target.
	ErrFundingExceedsTarget = errors.New("escrow: funding exceeds target")
	// ErrTooLate reports a fund attempt at or after the due timestamp.
	ErrTooLate = errors.New("escrow: past due timestamp")
	// ErrTooEarly reports a refund attempt before the due timestamp.
	ErrTooEarly = errors.New("escrow: before due timestamp")
	// ErrTransferFailed reports that the underlying asset rejected a
	// transfer; the transition is rolled back in full.
	ErrTransferFailed = errors.New("escrow: asset transfer failed")
)
