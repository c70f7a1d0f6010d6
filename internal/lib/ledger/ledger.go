package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	// Address is the identity holding the pool's custody in both asset ledgers.
	Address string
	// Owner is the only identity allowed to change the reward configuration.
	Owner string
	// Precision scales the reward-per-token accumulator. nil means DefaultPrecision.
	// A precision of 1 gives plain integer reward-per-token units.
	Precision *uint256.Int
	// Sink is optional.
	Sink EventSink
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	if cfg.Address == "" {
		return fmt.Errorf("%w: pool address is required", ErrInvalidConfig)
	}
	if cfg.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	}
	if cfg.Owner == cfg.Address {
		return fmt.Errorf("%w: owner can't be the pool address", ErrInvalidConfig)
	}
	if cfg.Precision == nil {
		cfg.Precision = DefaultPrecision.Clone()
	}
	if cfg.Precision.IsZero() {
		return fmt.Errorf("%w: precision must be at least 1", ErrInvalidConfig)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Ledger is the reward accounting core. Every mutating operation runs under
// the write lock, so operations are totally ordered and all-or-nothing.
type Ledger struct {
	log       *slog.Logger
	clock     clockwork.Clock
	address   string
	owner     string
	precision uint256.Int
	sink      EventSink

	stake  asset.Ledger
	reward asset.Ledger

	sync.RWMutex
	pool     Pool
	accounts map[string]*Account
}

// New creates an empty, unconfigured pool. Nothing accrues until the owner
// sets a duration and a reward.
func New(cfg Config, stake, reward asset.Ledger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stake == nil || reward == nil {
		return nil, fmt.Errorf("%w: stake and reward asset ledgers are required", ErrInvalidConfig)
	}
	l := &Ledger{
		log:       cfg.Logger,
		clock:     cfg.Clock,
		address:   cfg.Address,
		owner:     cfg.Owner,
		precision: *cfg.Precision,
		sink:      cfg.Sink,
		stake:     stake,
		reward:    reward,
		accounts:  make(map[string]*Account),
	}
	misc.Debugf(l.log, "ledger initialized, address:%s, owner:%s, stake:%s, reward:%s, precision:%s",
		l.address, l.owner, stake.Symbol(), reward.Symbol(), l.precision.Dec())
	return l, nil
}

func (l *Ledger) now() uint64 {
	ts := l.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (l *Ledger) Address() string          { return l.address }
func (l *Ledger) Owner() string            { return l.owner }
func (l *Ledger) StakeToken() string       { return l.stake.Symbol() }
func (l *Ledger) RewardToken() string      { return l.reward.Symbol() }
func (l *Ledger) Precision() *uint256.Int  { return l.precision.Clone() }
func (l *Ledger) StakeAsset() asset.Ledger { return l.stake }
func (l *Ledger) RewardAsset() asset.Ledger {
	return l.reward
}

// Pool returns a copy of the global state as last stored (not advanced to now).
func (l *Ledger) Pool() Pool {
	l.RLock()
	defer l.RUnlock()
	return l.pool
}

// Account returns a copy of an account's stored checkpoint.
func (l *Ledger) Account(id string) (Account, bool) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[id]; ok {
		return *acct, true
	}
	return Account{}, false
}

// Accounts returns every account identity, sorted.
func (l *Ledger) Accounts() []string {
	l.RLock()
	defer l.RUnlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalSupply is the total stake held by the pool.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.RLock()
	defer l.RUnlock()
	return l.pool.TotalStaked.Clone()
}

// Deposits is an account's current stake.
func (l *Ledger) Deposits(id string) *uint256.Int {
	acct, _ := l.Account(id)
	return acct.Staked.Clone()
}

// Rewards is the owed reward as of the account's last checkpoint. Use Earned
// for the live value.
func (l *Ledger) Rewards(id string) *uint256.Int {
	acct, _ := l.Account(id)
	return acct.RewardOwed.Clone()
}

func (l *Ledger) UserRewardPerTokenPaid(id string) *uint256.Int {
	acct, _ := l.Account(id)
	return acct.RewardPerTokenPaid.Clone()
}

func (l *Ledger) LastUpdateTime() uint64 { return l.Pool().LastUpdateTime }
func (l *Ledger) PeriodFinish() uint64   { return l.Pool().PeriodFinish }
func (l *Ledger) Duration() uint64       { return l.Pool().Duration }

func (l *Ledger) RewardRate() *uint256.Int {
	p := l.Pool()
	return p.RewardRate.Clone()
}

func (l *Ledger) TotalReward() *uint256.Int {
	p := l.Pool()
	return p.TotalReward.Clone()
}

// RewardPerToken is the accumulator advanced to the current time.
func (l *Ledger) RewardPerToken() (*uint256.Int, error) {
	l.RLock()
	defer l.RUnlock()
	return l.pool.rewardPerToken(l.now(), &l.precision)
}

// Earned is the live reward owed to an account, including accrual since its
// last checkpoint.
func (l *Ledger) Earned(id string) (*uint256.Int, error) {
	l.RLock()
	defer l.RUnlock()
	acct, ok := l.accounts[id]
	if !ok {
		return new(uint256.Int), nil
	}
	rpt, err := l.pool.rewardPerToken(l.now(), &l.precision)
	if err != nil {
		return nil, err
	}
	return acct.earned(rpt, &l.precision)
}

// Finished reports whether the reward period is over.
func (l *Ledger) Finished() bool {
	l.RLock()
	defer l.RUnlock()
	return l.pool.finished(l.now())
}

// CheckInvariants verifies the bookkeeping relations that must hold between
// operations.
func (l *Ledger) CheckInvariants() error {
	l.RLock()
	defer l.RUnlock()

	var (
		sum  uint256.Int
		errs []error
	)
	for id, acct := range l.accounts {
		if _, overflow := sum.AddOverflow(&sum, &acct.Staked); overflow {
			return fmt.Errorf("%w: summing stake at account %s", ErrOverflow, id)
		}
		if acct.RewardPerTokenPaid.Gt(&l.pool.RewardPerTokenStored) {
			errs = append(errs, fmt.Errorf("account %s checkpoint %s is ahead of accumulator %s",
				id, acct.RewardPerTokenPaid.Dec(), l.pool.RewardPerTokenStored.Dec()))
		}
	}
	if !sum.Eq(&l.pool.TotalStaked) {
		errs = append(errs, fmt.Errorf("total staked %s != sum of account stakes %s", l.pool.TotalStaked.Dec(), sum.Dec()))
	}
	if l.pool.LastUpdateTime > l.pool.PeriodFinish {
		errs = append(errs, fmt.Errorf("last update %d is after period finish %d", l.pool.LastUpdateTime, l.pool.PeriodFinish))
	}
	if now := l.now(); l.pool.LastUpdateTime > now {
		errs = append(errs, fmt.Errorf("last update %d is in the future (now:%d)", l.pool.LastUpdateTime, now))
	}
	return errors.Join(errs...)
}

// UpdateMetrics refreshes the prometheus gauges from current state.
func (l *Ledger) UpdateMetrics() error {
	l.RLock()
	defer l.RUnlock()
	now := l.now()
	rpt, err := l.pool.rewardPerToken(now, &l.precision)
	if err != nil {
		return err
	}
	promTotalStaked.Set(toFloat(&l.pool.TotalStaked))
	promRewardPerToken.Set(toFloat(rpt))
	promRewardRate.Set(toFloat(&l.pool.RewardRate))
	promNumAccounts.Set(float64(len(l.accounts)))
	if l.pool.finished(now) {
		promPeriodFinished.Set(1)
	} else {
		promPeriodFinished.Set(0)
	}
	return nil
}
