package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

// checkpoint captures the state one operation may touch so it can be put back
// if any later step, including an asset transfer, fails.
type checkpoint struct {
	l       *Ledger
	pool    Pool
	id      string
	account Account
	existed bool
	done    bool
}

// begin must be called with the write lock held.
func (l *Ledger) begin(id string) *checkpoint {
	cp := &checkpoint{l: l, pool: l.pool, id: id}
	if acct, ok := l.accounts[id]; ok {
		cp.account, cp.existed = *acct, true
	}
	return cp
}

func (cp *checkpoint) commit() { cp.done = true }

func (cp *checkpoint) rollback() {
	if cp.done {
		return
	}
	cp.done = true
	cp.l.pool = cp.pool
	if cp.id == "" {
		return
	}
	if cp.existed {
		*cp.l.accounts[cp.id] = cp.account
	} else {
		delete(cp.l.accounts, cp.id)
	}
}

// sync advances the pool to now and then checkpoints the account. Accounts
// are only created when create is set (deposits); other operations work on a
// transient zero account that is never stored.
func (l *Ledger) sync(id string, now uint64, create bool) (*Account, error) {
	if err := l.pool.update(now, &l.precision); err != nil {
		return nil, err
	}
	acct, ok := l.accounts[id]
	if !ok {
		acct = &Account{}
		if create {
			l.accounts[id] = acct
		}
	}
	if err := acct.checkpoint(&l.pool.RewardPerTokenStored, &l.precision); err != nil {
		return nil, err
	}
	return acct, nil
}

// observe counts the operation and logs rejections, which never change state.
func (l *Ledger) observe(op, caller string, err error) {
	observeOp(op, err)
	if err != nil {
		l.log.Debug("operation rejected", "op", op, "caller", caller, "error", err)
	}
}

func (l *Ledger) emit(e Event) {
	if l.sink != nil {
		l.sink.Emit(e)
	}
}

// Deposit moves amount of the stake asset from account into the pool and
// credits it to the account's stake, after settling rewards at the old weight.
func (l *Ledger) Deposit(ctx context.Context, account string, amount *uint256.Int) (err error) {
	defer func() { l.observe("deposit", account, err) }()
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: deposit amount must be greater than zero", ErrInvalidAmount)
	}
	if account == "" || account == l.address {
		return fmt.Errorf("%w: %q can't stake into the pool", ErrInvalidAccount, account)
	}

	l.Lock()
	defer l.Unlock()
	now := l.now()
	cp := l.begin(account)
	defer cp.rollback()

	acct, err := l.sync(account, now, true)
	if err != nil {
		return err
	}
	staked, overflow := new(uint256.Int).AddOverflow(&acct.Staked, amount)
	if overflow {
		return fmt.Errorf("%w: account stake", ErrOverflow)
	}
	total, overflow := new(uint256.Int).AddOverflow(&l.pool.TotalStaked, amount)
	if overflow {
		return fmt.Errorf("%w: total stake", ErrOverflow)
	}
	if err = l.stake.TransferFrom(ctx, l.address, account, l.address, amount); err != nil {
		return fmt.Errorf("%w: pulling %s %s from %s: %w", ErrTransferFailed, amount.Dec(), l.stake.Symbol(), account, err)
	}
	acct.Staked = *staked
	l.pool.TotalStaked = *total
	cp.commit()

	misc.Infof(l.log, "deposit of %s %s by %s at %d, total staked:%s", amount.Dec(), l.stake.Symbol(), account, now, total.Dec())
	l.emit(Event{Kind: EventDeposit, Account: account, Amount: amount.Clone(), Timestamp: now})
	return nil
}

// Withdraw returns amount of the account's stake, after settling rewards at
// the old weight. Zero and over-withdrawals are rejected.
func (l *Ledger) Withdraw(ctx context.Context, account string, amount *uint256.Int) (err error) {
	defer func() { l.observe("withdraw", account, err) }()
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: withdraw amount must be greater than zero", ErrInvalidAmount)
	}

	l.Lock()
	defer l.Unlock()
	if acct, ok := l.accounts[account]; !ok || amount.Gt(&acct.Staked) {
		var staked uint256.Int
		if ok {
			staked.Set(&acct.Staked)
		}
		return fmt.Errorf("%w: withdraw of %s exceeds stake of %s", ErrInvalidAmount, amount.Dec(), staked.Dec())
	}
	now := l.now()
	cp := l.begin(account)
	defer cp.rollback()

	acct, err := l.sync(account, now, false)
	if err != nil {
		return err
	}
	acct.Staked.Sub(&acct.Staked, amount)
	l.pool.TotalStaked.Sub(&l.pool.TotalStaked, amount)
	if err = l.stake.Transfer(ctx, l.address, account, amount); err != nil {
		return fmt.Errorf("%w: returning %s %s to %s: %w", ErrTransferFailed, amount.Dec(), l.stake.Symbol(), account, err)
	}
	cp.commit()

	misc.Infof(l.log, "withdraw of %s %s by %s at %d, total staked:%s", amount.Dec(), l.stake.Symbol(), account, now, l.pool.TotalStaked.Dec())
	l.emit(Event{Kind: EventWithdraw, Account: account, Amount: amount.Clone(), Timestamp: now})
	return nil
}

// Claim pays out everything the account has earned. A zero payout is a valid
// claim.
func (l *Ledger) Claim(ctx context.Context, account string) (payout *uint256.Int, err error) {
	defer func() { l.observe("claim", account, err) }()

	l.Lock()
	defer l.Unlock()
	now := l.now()
	cp := l.begin(account)
	defer cp.rollback()

	acct, err := l.sync(account, now, false)
	if err != nil {
		return nil, err
	}
	payout = acct.RewardOwed.Clone()
	acct.RewardOwed.Clear()
	if err = l.reward.Transfer(ctx, l.address, account, payout); err != nil {
		return nil, fmt.Errorf("%w: paying %s %s to %s: %w", ErrTransferFailed, payout.Dec(), l.reward.Symbol(), account, err)
	}
	cp.commit()

	promRewardPaid.Add(toFloat(payout))
	misc.Infof(l.log, "claim of %s %s by %s at %d", payout.Dec(), l.reward.Symbol(), account, now)
	l.emit(Event{Kind: EventClaim, Account: account, Amount: payout.Clone(), Timestamp: now})
	return payout, nil
}

func (l *Ledger) authorize(caller string) error {
	if caller != l.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// SetRewardRate flushes accrual at the old rate and then replaces it.
func (l *Ledger) SetRewardRate(caller string, rate *uint256.Int) (err error) {
	defer func() { l.observe("set_reward_rate", caller, err) }()
	if err = l.authorize(caller); err != nil {
		return err
	}
	if rate == nil {
		return fmt.Errorf("%w: rate is required", ErrInvalidAmount)
	}

	l.Lock()
	defer l.Unlock()
	cp := l.begin("")
	defer cp.rollback()
	if err = l.pool.update(l.now(), &l.precision); err != nil {
		return err
	}
	l.pool.RewardRate.Set(rate)
	cp.commit()

	misc.Infof(l.log, "reward rate set to %s per second", rate.Dec())
	return nil
}

// SetTotalReward sets the reward to spread over the configured duration and
// re-derives the rate from it.
func (l *Ledger) SetTotalReward(caller string, total *uint256.Int) (err error) {
	defer func() { l.observe("set_total_reward", caller, err) }()
	if err = l.authorize(caller); err != nil {
		return err
	}
	if total == nil {
		return fmt.Errorf("%w: total reward is required", ErrInvalidAmount)
	}

	l.Lock()
	defer l.Unlock()
	cp := l.begin("")
	defer cp.rollback()
	if err = l.pool.update(l.now(), &l.precision); err != nil {
		return err
	}
	l.pool.TotalReward.Set(total)
	l.pool.recomputeRate()
	cp.commit()

	misc.Infof(l.log, "total reward set to %s, rate:%s per second", total.Dec(), l.pool.RewardRate.Dec())
	return nil
}

// SetDuration starts a new reward period of the given length at the current
// time.
func (l *Ledger) SetDuration(caller string, seconds uint64) (err error) {
	defer func() { l.observe("set_duration", caller, err) }()
	if err = l.authorize(caller); err != nil {
		return err
	}
	if seconds == 0 {
		return fmt.Errorf("%w: duration must be greater than zero", ErrInvalidAmount)
	}

	l.Lock()
	defer l.Unlock()
	now := l.now()
	if now+seconds < now {
		return fmt.Errorf("%w: period end", ErrOverflow)
	}
	cp := l.begin("")
	defer cp.rollback()
	if err = l.pool.update(now, &l.precision); err != nil {
		return err
	}
	l.pool.Duration = seconds
	l.pool.PeriodFinish = now + seconds
	// the gap between an earlier period's end and now must not accrue at the new rate
	l.pool.LastUpdateTime = now
	if !l.pool.TotalReward.IsZero() {
		l.pool.recomputeRate()
	}
	cp.commit()

	misc.Infof(l.log, "reward period set to %d seconds, finishing at %d, rate:%s per second", seconds, l.pool.PeriodFinish, l.pool.RewardRate.Dec())
	return nil
}
