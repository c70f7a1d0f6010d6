package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Account is the per-staker checkpoint. Zero-balance accounts are kept.
type Account struct {
	Staked uint256.Int
	// RewardPerTokenPaid is the accumulator value at this account's last checkpoint.
	RewardPerTokenPaid uint256.Int
	// RewardOwed is accrued but unclaimed reward as of the last checkpoint.
	RewardOwed uint256.Int
}

// earned is RewardOwed plus the stake's share of accumulator growth since the
// last checkpoint, floored.
func (a *Account) earned(rewardPerToken, precision *uint256.Int) (*uint256.Int, error) {
	owed := a.RewardOwed.Clone()
	if a.Staked.IsZero() || !rewardPerToken.Gt(&a.RewardPerTokenPaid) {
		return owed, nil
	}
	delta := new(uint256.Int).Sub(rewardPerToken, &a.RewardPerTokenPaid)
	share, overflow := new(uint256.Int).MulDivOverflow(&a.Staked, delta, precision)
	if overflow {
		return nil, fmt.Errorf("%w: earned on stake %s", ErrOverflow, a.Staked.Dec())
	}
	if _, overflow = owed.AddOverflow(owed, share); overflow {
		return nil, fmt.Errorf("%w: owed reward", ErrOverflow)
	}
	return owed, nil
}

// checkpoint credits everything earned so far and moves the account onto the
// given accumulator value.
func (a *Account) checkpoint(rewardPerToken, precision *uint256.Int) error {
	owed, err := a.earned(rewardPerToken, precision)
	if err != nil {
		return err
	}
	a.RewardOwed = *owed
	a.RewardPerTokenPaid = *rewardPerToken
	return nil
}
