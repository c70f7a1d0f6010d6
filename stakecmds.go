package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

func GetStakeCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "stake",
		Aliases: []string{"s"},
		Usage:   "Deposit, withdraw and claim as the --account staker",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:   "deposit",
				Usage:  "Stake tokens. The pool must be approved to move them first (token approve)",
				Action: StakeDeposit,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Usage: "Whole stake tokens (decimals allowed)", Required: true},
				},
			},
			{
				Name:   "withdraw",
				Usage:  "Unstake tokens",
				Action: StakeWithdraw,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Usage: "Whole stake tokens (decimals allowed), or 'all'", Required: true},
				},
			},
			{
				Name:   "claim",
				Usage:  "Pay out all earned rewards",
				Action: StakeClaim,
			},
			{
				Name:   "earned",
				Usage:  "Show stake and live earned rewards without changing anything",
				Action: StakeEarned,
			},
		},
	}
}

func StakeDeposit(ctx context.Context, command *cli.Command) error {
	staker, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		amount, err := parseAmountFlag(command, "amount", s.stake.Decimals())
		if err != nil {
			return err
		}
		return s.ledger.Deposit(ctx, staker, amount)
	})
}

func StakeWithdraw(ctx context.Context, command *cli.Command) error {
	staker, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		amount := s.ledger.Deposits(staker)
		if command.String("amount") != "all" {
			if amount, err = parseAmountFlag(command, "amount", s.stake.Decimals()); err != nil {
				return err
			}
		}
		return s.ledger.Withdraw(ctx, staker, amount)
	})
}

func StakeClaim(ctx context.Context, command *cli.Command) error {
	staker, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		payout, err := s.ledger.Claim(ctx, staker)
		if err != nil {
			return err
		}
		if payout.IsZero() {
			misc.Infof(App.logger, "nothing to claim for %s", staker)
		}
		return nil
	})
}

func StakeEarned(ctx context.Context, command *cli.Command) error {
	staker, err := App.requireAccount()
	if err != nil {
		return err
	}
	return readSession(ctx, func(s *session) error {
		earned, err := s.ledger.Earned(staker)
		if err != nil {
			return err
		}
		fmt.Printf("Staked: %s %s\n", asset.FormatAmount(s.ledger.Deposits(staker), s.stake.Decimals()), s.stake.Symbol())
		fmt.Printf("Earned: %s %s\n", asset.FormatAmount(earned, s.reward.Decimals()), s.reward.Symbol())
		return nil
	})
}
