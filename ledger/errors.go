package ledger

import "errors"

var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrNoOpenPosition     = errors.New("no open position")
	ErrNonMonotonicDate   = errors.New("date is not after the previous entry")
	ErrInvalidShares      = errors.New("invalid share count")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNotInitialized     = errors.New("trade log not initialized")
	ErrAlreadyInitialized = errors.New("trade log already initialized")
)
