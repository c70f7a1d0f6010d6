package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// DefaultPrecision is the scale of the reward-per-token accumulator: 1e18.
var DefaultPrecision = uint256.NewInt(1_000_000_000_000_000_000)

// Pool is the global accrual state shared by every account.
type Pool struct {
	TotalStaked uint256.Int
	// RewardRate is reward base units emitted per second, split across all stake.
	RewardRate uint256.Int
	// RewardPerTokenStored is the accumulator, scaled by the ledger precision, as of LastUpdateTime.
	RewardPerTokenStored uint256.Int
	LastUpdateTime       uint64
	PeriodFinish         uint64

	// TotalReward and Duration are the owner inputs the rate is derived from.
	TotalReward uint256.Int
	Duration    uint64
}

// lastTimeRewardApplicable clamps now to the end of the reward period.
func (p *Pool) lastTimeRewardApplicable(now uint64) uint64 {
	return min(now, p.PeriodFinish)
}

// rewardPerToken returns the accumulator advanced to now without storing it.
// Nothing accrues while nothing is staked.
func (p *Pool) rewardPerToken(now uint64, precision *uint256.Int) (*uint256.Int, error) {
	stored := p.RewardPerTokenStored.Clone()
	if p.TotalStaked.IsZero() {
		return stored, nil
	}
	applicable := p.lastTimeRewardApplicable(now)
	if applicable <= p.LastUpdateTime {
		return stored, nil
	}
	elapsed := uint256.NewInt(applicable - p.LastUpdateTime)

	emitted, overflow := new(uint256.Int).MulOverflow(&p.RewardRate, elapsed)
	if overflow {
		return nil, fmt.Errorf("%w: rate %s over %s seconds", ErrOverflow, p.RewardRate.Dec(), elapsed.Dec())
	}
	// floor(emitted * precision / totalStaked), with a 512 bit intermediate product
	perToken, overflow := new(uint256.Int).MulDivOverflow(emitted, precision, &p.TotalStaked)
	if overflow {
		return nil, fmt.Errorf("%w: reward per token increment", ErrOverflow)
	}
	if _, overflow = stored.AddOverflow(stored, perToken); overflow {
		return nil, fmt.Errorf("%w: reward per token accumulator", ErrOverflow)
	}
	return stored, nil
}

// update folds accrual up to now into the stored accumulator. Calling it twice
// at the same instant leaves the pool unchanged.
func (p *Pool) update(now uint64, precision *uint256.Int) error {
	rpt, err := p.rewardPerToken(now, precision)
	if err != nil {
		return err
	}
	p.RewardPerTokenStored = *rpt
	// a clock stepping backwards must not reopen an interval already accrued
	p.LastUpdateTime = max(p.LastUpdateTime, p.lastTimeRewardApplicable(now))
	return nil
}

// recomputeRate derives the rate from the owner's total reward and duration.
func (p *Pool) recomputeRate() {
	if p.Duration == 0 {
		return
	}
	p.RewardRate.Div(&p.TotalReward, uint256.NewInt(p.Duration))
}

func (p *Pool) finished(now uint64) bool {
	return now >= p.PeriodFinish
}
