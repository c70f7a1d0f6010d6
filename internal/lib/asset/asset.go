package asset

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is the capability the reward ledger uses to move a single asset.
// Implementations either apply a transfer completely or return an error and
// leave balances untouched.
type Ledger interface {
	// Symbol identifies the asset.
	Symbol() string
	// TransferFrom moves amount from 'from' to 'to', spending an allowance
	// granted by 'from' to 'spender'.
	TransferFrom(ctx context.Context, spender, from, to string, amount *uint256.Int) error
	// Transfer moves amount out of the balance held by 'from'.
	Transfer(ctx context.Context, from, to string, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account string) (*uint256.Int, error)
}
