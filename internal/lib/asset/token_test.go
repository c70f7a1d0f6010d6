package asset

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_TransferFrom(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("STK", 18)
	require.NoError(t, tok.Mint("alice", Units(1000, 18)))

	tests := []struct {
		name    string
		approve *uint256.Int
		amount  *uint256.Int
		wantErr error
	}{
		{"no allowance", nil, Units(1, 18), ErrInsufficientAllowance},
		{"allowance too small", Units(1, 18), Units(2, 18), ErrInsufficientAllowance},
		{"balance too small", Units(5000, 18), Units(2000, 18), ErrInsufficientBalance},
		{"exact allowance", Units(400, 18), Units(400, 18), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.approve != nil {
				tok.Approve("alice", "pool", tt.approve)
			}
			before, _ := tok.BalanceOf(ctx, "alice")
			err := tok.TransferFrom(ctx, "pool", "alice", "pool", tt.amount)
			after, _ := tok.BalanceOf(ctx, "alice")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, after, "failed transfer must not move funds")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, new(uint256.Int).Sub(before, tt.amount), after)
			assert.True(t, tok.Allowance("alice", "pool").IsZero())
		})
	}

	poolBal, _ := tok.BalanceOf(ctx, "pool")
	assert.Equal(t, Units(400, 18), poolBal)
	assert.Equal(t, Units(1000, 18), tok.TotalSupply())
}

func TestToken_Transfer(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("RWD", 18)
	require.NoError(t, tok.Mint("pool", Units(10, 18)))

	assert.ErrorIs(t, tok.Transfer(ctx, "pool", "bob", Units(11, 18)), ErrInsufficientBalance)
	require.NoError(t, tok.Transfer(ctx, "pool", "bob", new(uint256.Int)), "zero transfers are valid")
	require.NoError(t, tok.Transfer(ctx, "pool", "bob", Units(4, 18)))

	bob, _ := tok.BalanceOf(ctx, "bob")
	pool, _ := tok.BalanceOf(ctx, "pool")
	assert.Equal(t, Units(4, 18), bob)
	assert.Equal(t, Units(6, 18), pool)
	assert.Equal(t, []string{"bob", "pool"}, tok.Accounts())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, tok.Transfer(cancelled, "pool", "bob", Units(1, 18)), context.Canceled)
}

func TestToken_SnapshotRestore(t *testing.T) {
	tok := NewToken("STK", 6)
	require.NoError(t, tok.Mint("alice", Units(7, 6)))
	require.NoError(t, tok.Mint("bob", Units(3, 6)))
	tok.Approve("alice", "pool", Units(2, 6))

	restored, err := RestoreToken(tok.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "STK", restored.Symbol())
	assert.Equal(t, uint8(6), restored.Decimals())
	assert.Equal(t, Units(10, 6), restored.TotalSupply())
	assert.Equal(t, Units(2, 6), restored.Allowance("alice", "pool"))
	bal, _ := restored.BalanceOf(context.Background(), "alice")
	assert.Equal(t, Units(7, 6), bal)
}

func TestFormatParseAmount(t *testing.T) {
	testCases := []struct {
		text     string
		decimals uint8
		units    string
		format   string
	}{
		{"1000", 18, "1000000000000000000000", "1000"},
		{"1.5", 18, "1500000000000000000", "1.5"},
		{"0.000001", 6, "1", "0.000001"},
		{"20_000", 0, "20000", "20000"},
		{"0", 18, "0", "0"},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			amount, err := ParseAmount(tc.text, tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, tc.units, amount.Dec())
			assert.Equal(t, tc.format, FormatAmount(amount, tc.decimals))
		})
	}

	_, err := ParseAmount("1.0000001", 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("abc", 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("", 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
