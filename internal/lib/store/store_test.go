package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stakedState builds a pool with one staker ten seconds into a reward period.
func stakedState(t *testing.T) (State, ledger.Config) {
	t.Helper()
	ctx := context.Background()
	stake, reward := asset.NewToken("STK", 18), asset.NewToken("RWD", 6)
	cfg := ledger.Config{
		Logger:  testLogger(),
		Clock:   clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		Address: "pool",
		Owner:   "owner",
	}
	l, err := ledger.New(cfg, stake, reward)
	require.NoError(t, err)

	require.NoError(t, stake.Mint("alice", asset.Units(50, 18)))
	stake.Approve("alice", "pool", asset.Units(100, 18))
	require.NoError(t, reward.Mint("pool", asset.Units(1000, 6)))
	require.NoError(t, l.SetDuration("owner", 1000))
	require.NoError(t, l.SetTotalReward("owner", asset.Units(1000, 6)))
	require.NoError(t, l.Deposit(ctx, "alice", asset.Units(50, 18)))
	cfg.Clock.(*clockwork.FakeClock).Advance(10 * time.Second)
	_, err = l.Claim(ctx, "alice")
	require.NoError(t, err)

	return State{
		Ledger: l.Snapshot(),
		Tokens: []asset.TokenSnapshot{stake.Snapshot(), reward.Snapshot()},
	}, cfg
}

func TestStore_NotInitialized(t *testing.T) {
	s, err := OpenMem(testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LoadState()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestStore_SaveLoad(t *testing.T) {
	s, err := OpenMem(testLogger())
	require.NoError(t, err)
	defer s.Close()

	state, cfg := stakedState(t)
	require.NoError(t, s.SaveState(state))

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, state.Ledger, loaded.Ledger)
	assert.ElementsMatch(t, state.Tokens, loaded.Tokens)

	stakeSnap, ok := loaded.Token("STK")
	require.True(t, ok)
	rewardSnap, ok := loaded.Token("RWD")
	require.True(t, ok)
	_, ok = loaded.Token("XYZ")
	assert.False(t, ok)

	stake, err := asset.RestoreToken(stakeSnap)
	require.NoError(t, err)
	reward, err := asset.RestoreToken(rewardSnap)
	require.NoError(t, err)
	assert.Equal(t, asset.Units(50, 18), stake.TotalSupply())
	assert.Equal(t, uint8(6), reward.Decimals())
	assert.Equal(t, asset.Units(50, 18), stake.Allowance("alice", "pool"))

	l, err := ledger.Restore(cfg, stake, reward, loaded.Ledger)
	require.NoError(t, err)
	assert.Equal(t, asset.Units(50, 18), l.Deposits("alice"))
	assert.NoError(t, l.CheckInvariants())

	// the restored ledger keeps working against the restored tokens
	require.NoError(t, l.Withdraw(context.Background(), "alice", asset.Units(50, 18)))
	bal, err := stake.BalanceOf(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, asset.Units(50, 18), bal)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, err := OpenMem(testLogger())
	require.NoError(t, err)
	defer s.Close()

	state, _ := stakedState(t)
	require.NoError(t, s.SaveState(state))

	state.Ledger.Pool.RewardRate = uint256.NewInt(7)
	require.NoError(t, s.SaveState(state))
	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(7), loaded.Ledger.Pool.RewardRate)
	assert.Len(t, loaded.Ledger.Accounts, 1)
}

func TestStore_OpenFile(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(ctx, testLogger(), dir)
	require.NoError(t, err)
	state, _ := stakedState(t)
	require.NoError(t, s.SaveState(state))
	require.NoError(t, s.Close())
	// closing twice is harmless
	require.NoError(t, s.Close())

	s, err = Open(ctx, testLogger(), dir)
	require.NoError(t, err)
	defer s.Close()
	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, state.Ledger, loaded.Ledger)
}

func TestStore_OpenLockedGivesUp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	held, err := Open(context.Background(), testLogger(), dir)
	require.NoError(t, err)
	defer held.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = Open(ctx, testLogger(), dir)
	assert.Error(t, err)
}
