package asset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

// Token is an in-process fungible token with balances and allowances. It
// stands in for the external stake and reward asset ledgers.
type Token struct {
	symbol   string
	decimals uint8

	sync.RWMutex
	supply     uint256.Int
	balances   map[string]*uint256.Int
	allowances map[string]map[string]*uint256.Int // owner -> spender -> remaining
}

// TokenSnapshot is the persisted form of a Token.
type TokenSnapshot struct {
	Symbol     string                             `json:"symbol"`
	Decimals   uint8                              `json:"decimals"`
	Balances   map[string]*uint256.Int            `json:"balances"`
	Allowances map[string]map[string]*uint256.Int `json:"allowances,omitempty"`
}

func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]map[string]*uint256.Int),
	}
}

// RestoreToken rebuilds a token from its snapshot. Total supply is recomputed
// from the balances.
func RestoreToken(snap TokenSnapshot) (*Token, error) {
	t := NewToken(snap.Symbol, snap.Decimals)
	for account, bal := range snap.Balances {
		if bal == nil {
			continue
		}
		if _, overflow := t.supply.AddOverflow(&t.supply, bal); overflow {
			return nil, fmt.Errorf("token %s: supply overflow restoring balance of %s", snap.Symbol, account)
		}
		t.balances[account] = bal.Clone()
	}
	for owner, spenders := range snap.Allowances {
		for spender, amount := range spenders {
			if amount == nil {
				continue
			}
			t.setAllowance(owner, spender, amount)
		}
	}
	return t, nil
}

func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) TotalSupply() *uint256.Int {
	t.RLock()
	defer t.RUnlock()
	return t.supply.Clone()
}

// Mint creates amount new units in account.
func (t *Token) Mint(account string, amount *uint256.Int) error {
	t.Lock()
	defer t.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(&t.supply, amount)
	if overflow {
		return fmt.Errorf("%w: minting %s %s overflows supply", ErrInvalidAmount, amount.Dec(), t.symbol)
	}
	t.supply = *supply
	t.credit(account, amount)
	return nil
}

// Approve sets (not adds to) the amount spender may move out of owner's balance.
func (t *Token) Approve(owner, spender string, amount *uint256.Int) {
	t.Lock()
	defer t.Unlock()
	t.setAllowance(owner, spender, amount)
}

func (t *Token) Allowance(owner, spender string) *uint256.Int {
	t.RLock()
	defer t.RUnlock()
	if amount, ok := t.allowances[owner][spender]; ok {
		return amount.Clone()
	}
	return new(uint256.Int)
}

func (t *Token) BalanceOf(_ context.Context, account string) (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	return t.balanceOf(account), nil
}

func (t *Token) Transfer(ctx context.Context, from, to string, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(ctx context.Context, spender, from, to string, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()

	allowed, ok := t.allowances[from][spender]
	if spender != from && (!ok || allowed.Lt(amount)) {
		var have uint256.Int
		if ok {
			have.Set(allowed)
		}
		return fmt.Errorf("%w: %s may move %s %s of %s, wanted %s", ErrInsufficientAllowance,
			spender, have.Dec(), t.symbol, from, amount.Dec())
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if spender != from {
		allowed.Sub(allowed, amount)
	}
	return nil
}

// Accounts returns every account that has ever held a balance, sorted.
func (t *Token) Accounts() []string {
	t.RLock()
	defer t.RUnlock()
	accounts := make([]string, 0, len(t.balances))
	for account := range t.balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

func (t *Token) Snapshot() TokenSnapshot {
	t.RLock()
	defer t.RUnlock()

	snap := TokenSnapshot{
		Symbol:   t.symbol,
		Decimals: t.decimals,
		Balances: make(map[string]*uint256.Int, len(t.balances)),
	}
	for account, bal := range t.balances {
		snap.Balances[account] = bal.Clone()
	}
	if len(t.allowances) > 0 {
		snap.Allowances = make(map[string]map[string]*uint256.Int, len(t.allowances))
	}
	for owner, spenders := range t.allowances {
		copied := make(map[string]*uint256.Int, len(spenders))
		for spender, amount := range spenders {
			copied[spender] = amount.Clone()
		}
		snap.Allowances[owner] = copied
	}
	return snap
}

// move must be called with the write lock held.
func (t *Token) move(from, to string, amount *uint256.Int) error {
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, wanted %s", ErrInsufficientBalance, from, bal.Dec(), t.symbol, amount.Dec())
	}
	if amount.IsZero() {
		return nil
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *Token) credit(account string, amount *uint256.Int) {
	if bal, ok := t.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[account] = amount.Clone()
}

func (t *Token) balanceOf(account string) *uint256.Int {
	if bal, ok := t.balances[account]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (t *Token) setAllowance(owner, spender string, amount *uint256.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[string]*uint256.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = amount.Clone()
}
