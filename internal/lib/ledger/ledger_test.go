package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
)

const (
	testOwner = "owner"
	testPool  = "pool"
)

var testStart = time.Unix(1_700_000_000, 0)

type testEnv struct {
	ledger *Ledger
	stake  *asset.Token
	reward *asset.Token
	clock  *clockwork.FakeClock
	events *Recorder
}

func newTestEnv(t *testing.T, precision *uint256.Int) *testEnv {
	t.Helper()
	env := &testEnv{
		stake:  asset.NewToken("STK", 18),
		reward: asset.NewToken("RWD", 18),
		clock:  clockwork.NewFakeClockAt(testStart),
		events: &Recorder{},
	}
	l, err := New(Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     env.clock,
		Address:   testPool,
		Owner:     testOwner,
		Precision: precision,
		Sink:      env.events,
	}, env.stake, env.reward)
	require.NoError(t, err)
	env.ledger = l
	return env
}

func (env *testEnv) fund(t *testing.T, account string, whole uint64) {
	t.Helper()
	require.NoError(t, env.stake.Mint(account, ether(whole)))
	env.stake.Approve(account, testPool, ether(whole))
}

func (env *testEnv) advance(seconds int) {
	env.clock.Advance(time.Duration(seconds) * time.Second)
}

func (env *testEnv) now() uint64 {
	return uint64(env.clock.Now().Unix())
}

func (env *testEnv) rpt(t *testing.T) uint64 {
	t.Helper()
	rpt, err := env.ledger.RewardPerToken()
	require.NoError(t, err)
	return rpt.Uint64()
}

func (env *testEnv) balance(t *testing.T, tok *asset.Token, account string) *uint256.Int {
	t.Helper()
	bal, err := tok.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func ether(n uint64) *uint256.Int {
	return asset.Units(n, 18)
}

func TestNew_Validate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stake, reward := asset.NewToken("STK", 18), asset.NewToken("RWD", 18)

	testCases := []struct {
		name string
		cfg  Config
	}{
		{"no logger", Config{Address: testPool, Owner: testOwner}},
		{"no address", Config{Logger: logger, Owner: testOwner}},
		{"no owner", Config{Logger: logger, Address: testPool}},
		{"owner is pool", Config{Logger: logger, Address: testPool, Owner: testPool}},
		{"zero precision", Config{Logger: logger, Address: testPool, Owner: testOwner, Precision: new(uint256.Int)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, stake, reward)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	l, err := New(Config{Logger: logger, Address: testPool, Owner: testOwner}, stake, reward)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrecision, l.Precision())
	assert.Equal(t, "STK", l.StakeToken())
	assert.Equal(t, "RWD", l.RewardToken())
}

// TestLedger_StakeLifecycle replays a full deposit/withdraw/claim history with
// integer reward-per-token units and a rate of 1 RWD per second.
func TestLedger_StakeLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, uint256.NewInt(1))
	l := env.ledger

	env.fund(t, "signer1", 1000)
	env.fund(t, "signer2", 20000)
	env.fund(t, "signer3", 20000)
	require.NoError(t, env.reward.Mint(testPool, ether(1_000_000)))

	require.NoError(t, l.SetTotalReward(testOwner, ether(2_000_000)))
	assert.Equal(t, ether(2_000_000), l.TotalReward())
	require.NoError(t, l.SetDuration(testOwner, 2_000_000))
	assert.Equal(t, uint64(2_000_000), l.Duration())
	assert.Equal(t, ether(1), l.RewardRate())

	// deposit
	assert.ErrorIs(t, l.Deposit(ctx, "signer1", new(uint256.Int)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(ctx, testPool, ether(1)), ErrInvalidAccount)
	assert.ErrorIs(t, l.Deposit(ctx, "", ether(1)), ErrInvalidAccount)
	assert.Empty(t, l.Accounts())

	env.advance(1001)
	require.NoError(t, l.Deposit(ctx, "signer1", ether(1000)))
	last, _ := env.events.Last()
	assert.Equal(t, Event{Kind: EventDeposit, Account: "signer1", Amount: ether(1000), Timestamp: env.now()}, last)
	assert.Equal(t, ether(1000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(1000), l.Deposits("signer1"))
	assert.Equal(t, ether(1000), l.TotalSupply())
	assert.Equal(t, uint64(0), env.rpt(t))
	assert.True(t, l.Rewards("signer1").IsZero())
	assert.True(t, l.UserRewardPerTokenPaid("signer1").IsZero())
	assert.Equal(t, env.now(), l.LastUpdateTime())

	env.advance(49001)
	require.NoError(t, l.Deposit(ctx, "signer2", ether(20000)))
	assert.Equal(t, ether(21000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(20000), l.Deposits("signer2"))
	assert.Equal(t, ether(21000), l.TotalSupply())
	assert.Equal(t, uint64(49), env.rpt(t))
	assert.True(t, l.Rewards("signer2").IsZero())
	assert.Equal(t, uint256.NewInt(49), l.UserRewardPerTokenPaid("signer2"))
	assert.Equal(t, env.now(), l.LastUpdateTime())

	env.advance(20001)
	require.NoError(t, l.Deposit(ctx, "signer3", ether(10000)))
	assert.Equal(t, ether(31000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(10000), l.Deposits("signer3"))
	assert.Equal(t, ether(31000), l.TotalSupply())
	assert.Equal(t, uint64(49), env.rpt(t))
	assert.True(t, l.Rewards("signer3").IsZero())
	assert.Equal(t, uint256.NewInt(49), l.UserRewardPerTokenPaid("signer3"))

	// withdraw
	assert.ErrorIs(t, l.Withdraw(ctx, "signer1", ether(2000)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Withdraw(ctx, "signer1", new(uint256.Int)), ErrInvalidAmount)

	env.advance(30001)
	require.NoError(t, l.Withdraw(ctx, "signer1", ether(1000)))
	last, _ = env.events.Last()
	assert.Equal(t, Event{Kind: EventWithdraw, Account: "signer1", Amount: ether(1000), Timestamp: env.now()}, last)
	assert.Equal(t, ether(30000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(1000), env.balance(t, env.stake, "signer1"))
	assert.True(t, l.Deposits("signer1").IsZero())
	assert.Equal(t, ether(30000), l.TotalSupply())
	assert.Equal(t, uint64(49), env.rpt(t))
	// the emptied account stays checkpointed at the accumulator
	assert.Equal(t, uint256.NewInt(49), l.UserRewardPerTokenPaid("signer1"))
	assert.Equal(t, ether(49000), l.Rewards("signer1"))
	assert.Equal(t, env.now(), l.LastUpdateTime())

	env.advance(400001)
	env.stake.Approve("signer3", testPool, ether(10000))
	require.NoError(t, l.Deposit(ctx, "signer3", ether(10000)))
	assert.Equal(t, ether(40000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(20000), l.Deposits("signer3"))
	assert.Equal(t, ether(40000), l.TotalSupply())
	assert.Equal(t, uint64(62), env.rpt(t))
	assert.Equal(t, ether(130000), l.Rewards("signer3"))
	assert.Equal(t, uint256.NewInt(62), l.UserRewardPerTokenPaid("signer3"))

	env.advance(500001)
	require.NoError(t, l.Withdraw(ctx, "signer2", ether(20000)))
	assert.Equal(t, ether(20000), env.balance(t, env.stake, testPool))
	assert.Equal(t, ether(20000), env.balance(t, env.stake, "signer2"))
	assert.True(t, l.Deposits("signer2").IsZero())
	assert.Equal(t, ether(20000), l.TotalSupply())
	assert.Equal(t, uint64(74), env.rpt(t))
	assert.Equal(t, ether(500000), l.Rewards("signer2"))

	env.advance(500001)
	require.NoError(t, l.Withdraw(ctx, "signer3", ether(20000)))
	assert.True(t, env.balance(t, env.stake, testPool).IsZero())
	assert.Equal(t, ether(20000), env.balance(t, env.stake, "signer3"))
	assert.True(t, l.TotalSupply().IsZero())
	assert.Equal(t, uint64(99), env.rpt(t))
	assert.Equal(t, ether(870000), l.Rewards("signer3"))
	assert.Equal(t, env.now(), l.LastUpdateTime())

	// claim
	payout, err := l.Claim(ctx, "signer1")
	require.NoError(t, err)
	assert.Equal(t, ether(49000), payout)
	last, _ = env.events.Last()
	assert.Equal(t, Event{Kind: EventClaim, Account: "signer1", Amount: ether(49000), Timestamp: env.now()}, last)
	assert.Equal(t, ether(49000), env.balance(t, env.reward, "signer1"))
	assert.True(t, l.Rewards("signer1").IsZero())

	assert.Len(t, env.events.Events(), 8)
	assert.Equal(t, []string{"signer1", "signer2", "signer3"}, l.Accounts())
	assert.NoError(t, l.CheckInvariants())
}

func TestLedger_ClaimNothingOwed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	payout, err := env.ledger.Claim(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, payout.IsZero())
	last, ok := env.events.Last()
	require.True(t, ok)
	assert.Equal(t, EventClaim, last.Kind)
	assert.True(t, last.Amount.IsZero())
	assert.True(t, env.ledger.Rewards("nobody").IsZero())
	assert.Empty(t, env.ledger.Accounts(), "claims don't create accounts")

	// a staker with nothing accrued yet (no reward configured)
	env.fund(t, "alice", 10)
	require.NoError(t, env.ledger.Deposit(ctx, "alice", ether(10)))
	env.advance(3600)
	payout, err = env.ledger.Claim(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, payout.IsZero())
	assert.True(t, env.ledger.Rewards("alice").IsZero())
}

func TestLedger_Unauthorized(t *testing.T) {
	env := newTestEnv(t, nil)
	l := env.ledger

	assert.ErrorIs(t, l.SetTotalReward("mallory", ether(1)), ErrUnauthorized)
	assert.ErrorIs(t, l.SetRewardRate("mallory", ether(1)), ErrUnauthorized)
	assert.ErrorIs(t, l.SetDuration("mallory", 100), ErrUnauthorized)
	assert.ErrorIs(t, l.SetDuration(testOwner, 0), ErrInvalidAmount)

	assert.True(t, l.RewardRate().IsZero())
	assert.Zero(t, l.PeriodFinish())
}

func TestLedger_SetRewardRate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, uint256.NewInt(1))
	l := env.ledger

	env.fund(t, "alice", 100)
	require.NoError(t, l.SetDuration(testOwner, 1000))
	require.NoError(t, l.SetRewardRate(testOwner, ether(1)))
	require.NoError(t, l.Deposit(ctx, "alice", ether(100)))

	env.advance(100)
	// 100 seconds at the old rate are settled before the rate changes
	require.NoError(t, l.SetRewardRate(testOwner, ether(3)))
	env.advance(100)

	earned, err := l.Earned("alice")
	require.NoError(t, err)
	assert.Equal(t, ether(100+300), earned)
	assert.True(t, l.Rewards("alice").IsZero(), "rewards is the stale stored value until the account is touched")
}
