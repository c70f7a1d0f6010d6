package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/mailgun/holster/v4/syncutil"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/ledger"
)

// AuditReport is the result of checking a pool's books against the asset
// ledgers holding its custody.
type AuditReport struct {
	Accounts    int
	TotalStaked *uint256.Int
	StakeHeld   *uint256.Int
	TotalEarned *uint256.Int
	RewardFunds *uint256.Int
	Earned      map[string]*uint256.Int
	Problems    []string
}

func (r *AuditReport) OK() bool {
	return len(r.Problems) == 0
}

type denomination interface {
	Symbol() string
	Decimals() uint8
}

func (r *AuditReport) String(stake, reward denomination) string {
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Stakers:\t%d\n", r.Accounts)
	fmt.Fprintf(tw, "Total Staked:\t%s %s\n", asset.FormatAmount(r.TotalStaked, stake.Decimals()), stake.Symbol())
	fmt.Fprintf(tw, "Stake Held:\t%s %s\n", asset.FormatAmount(r.StakeHeld, stake.Decimals()), stake.Symbol())
	fmt.Fprintf(tw, "Rewards Owed:\t%s %s\n", asset.FormatAmount(r.TotalEarned, reward.Decimals()), reward.Symbol())
	fmt.Fprintf(tw, "Reward Funds:\t%s %s\n", asset.FormatAmount(r.RewardFunds, reward.Decimals()), reward.Symbol())
	tw.Flush()
	if r.OK() {
		fmt.Fprintln(out, "OK")
	}
	for _, problem := range r.Problems {
		fmt.Fprintln(out, "PROBLEM:", problem)
	}
	return out.String()
}

// auditLedger checks the bookkeeping invariants, that the pool holds at least
// the stake it owes back and that its reward funds cover everything earned so
// far.
func auditLedger(ctx context.Context, l *ledger.Ledger) (*AuditReport, error) {
	accounts := l.Accounts()
	report := &AuditReport{
		Accounts:    len(accounts),
		TotalStaked: l.TotalSupply(),
		TotalEarned: new(uint256.Int),
	}
	if err := l.CheckInvariants(); err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("invariants: %v", err))
	}

	earned, err := getEarnedForAccounts(ctx, l, accounts)
	if err != nil {
		return nil, err
	}
	report.Earned = earned
	for _, amount := range earned {
		if _, overflow := report.TotalEarned.AddOverflow(report.TotalEarned, amount); overflow {
			return nil, fmt.Errorf("%w: summing earned rewards", ledger.ErrOverflow)
		}
	}

	report.StakeHeld, err = l.StakeAsset().BalanceOf(ctx, l.Address())
	if err != nil {
		return nil, fmt.Errorf("error getting stake custody of %s: %w", l.Address(), err)
	}
	report.RewardFunds, err = l.RewardAsset().BalanceOf(ctx, l.Address())
	if err != nil {
		return nil, fmt.Errorf("error getting reward funds of %s: %w", l.Address(), err)
	}
	if report.StakeHeld.Lt(report.TotalStaked) {
		report.Problems = append(report.Problems, fmt.Sprintf("pool holds %s %s but owes %s back to stakers",
			report.StakeHeld.Dec(), l.StakeToken(), report.TotalStaked.Dec()))
	}
	if report.RewardFunds.Lt(report.TotalEarned) {
		report.Problems = append(report.Problems, fmt.Sprintf("pool holds %s %s of rewards but %s has been earned",
			report.RewardFunds.Dec(), l.RewardToken(), report.TotalEarned.Dec()))
	}
	sort.Strings(report.Problems)
	return report, nil
}

// getEarnedForAccounts computes the live earned reward of every account in
// parallel.
func getEarnedForAccounts(ctx context.Context, l *ledger.Ledger, accounts []string) (map[string]*uint256.Int, error) {
	var (
		fanOut  = syncutil.NewFanOut(20)
		mu      sync.Mutex
		results = make(map[string]*uint256.Int, len(accounts))
	)
	for _, account := range accounts {
		fanOut.Run(func(val any) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := val.(string)
			earned, err := l.Earned(id)
			if err != nil {
				return fmt.Errorf("account %s: %w", id, err)
			}
			mu.Lock()
			results[id] = earned
			mu.Unlock()
			return nil
		}, account)
	}
	if errs := fanOut.Wait(); len(errs) > 0 {
		return nil, errs[0]
	}
	return results, nil
}
