package ledger

import (
	"errors"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidAccount = errors.New("invalid account")
	ErrUnauthorized   = errors.New("caller is not the pool owner")
	ErrTransferFailed = errors.New("asset transfer failed")
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrInvalidConfig  = errors.New("invalid ledger configuration")
)
