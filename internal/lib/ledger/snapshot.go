package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
)

// PoolSnapshot and AccountSnapshot are the persisted forms of Pool and
// Account. Amounts marshal as decimal strings.
type PoolSnapshot struct {
	TotalStaked          *uint256.Int `json:"totalStaked"`
	RewardRate           *uint256.Int `json:"rewardRate"`
	RewardPerTokenStored *uint256.Int `json:"rewardPerTokenStored"`
	LastUpdateTime       uint64       `json:"lastUpdateTime"`
	PeriodFinish         uint64       `json:"periodFinish"`
	TotalReward          *uint256.Int `json:"totalReward"`
	Duration             uint64       `json:"duration"`
}

type AccountSnapshot struct {
	Staked             *uint256.Int `json:"staked"`
	RewardPerTokenPaid *uint256.Int `json:"rewardPerTokenPaid"`
	RewardOwed         *uint256.Int `json:"rewardOwed"`
}

type Snapshot struct {
	Pool     PoolSnapshot               `json:"pool"`
	Accounts map[string]AccountSnapshot `json:"accounts"`
}

func (p *Pool) snapshot() PoolSnapshot {
	return PoolSnapshot{
		TotalStaked:          p.TotalStaked.Clone(),
		RewardRate:           p.RewardRate.Clone(),
		RewardPerTokenStored: p.RewardPerTokenStored.Clone(),
		LastUpdateTime:       p.LastUpdateTime,
		PeriodFinish:         p.PeriodFinish,
		TotalReward:          p.TotalReward.Clone(),
		Duration:             p.Duration,
	}
}

func (a *Account) snapshot() AccountSnapshot {
	return AccountSnapshot{
		Staked:             a.Staked.Clone(),
		RewardPerTokenPaid: a.RewardPerTokenPaid.Clone(),
		RewardOwed:         a.RewardOwed.Clone(),
	}
}

// Snapshot copies the stored state. It does not advance the accumulator.
func (l *Ledger) Snapshot() Snapshot {
	l.RLock()
	defer l.RUnlock()
	snap := Snapshot{
		Pool:     l.pool.snapshot(),
		Accounts: make(map[string]AccountSnapshot, len(l.accounts)),
	}
	for id, acct := range l.accounts {
		snap.Accounts[id] = acct.snapshot()
	}
	return snap
}

// Restore builds a ledger from a snapshot, refusing state that breaks the
// stake bookkeeping invariant.
func Restore(cfg Config, stake, reward asset.Ledger, snap Snapshot) (*Ledger, error) {
	l, err := New(cfg, stake, reward)
	if err != nil {
		return nil, err
	}
	set := func(dst *uint256.Int, src *uint256.Int) {
		if src != nil {
			dst.Set(src)
		}
	}
	set(&l.pool.TotalStaked, snap.Pool.TotalStaked)
	set(&l.pool.RewardRate, snap.Pool.RewardRate)
	set(&l.pool.RewardPerTokenStored, snap.Pool.RewardPerTokenStored)
	set(&l.pool.TotalReward, snap.Pool.TotalReward)
	l.pool.LastUpdateTime = snap.Pool.LastUpdateTime
	l.pool.PeriodFinish = snap.Pool.PeriodFinish
	l.pool.Duration = snap.Pool.Duration

	for id, as := range snap.Accounts {
		acct := &Account{}
		set(&acct.Staked, as.Staked)
		set(&acct.RewardPerTokenPaid, as.RewardPerTokenPaid)
		set(&acct.RewardOwed, as.RewardOwed)
		l.accounts[id] = acct
	}

	var sum uint256.Int
	for id, acct := range l.accounts {
		if _, overflow := sum.AddOverflow(&sum, &acct.Staked); overflow {
			return nil, fmt.Errorf("%w: summing stake at account %s", ErrOverflow, id)
		}
	}
	if !sum.Eq(&l.pool.TotalStaked) {
		return nil, fmt.Errorf("%w: snapshot total staked %s != sum of account stakes %s",
			ErrInvalidConfig, l.pool.TotalStaked.Dec(), sum.Dec())
	}
	return l, nil
}
