package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

// The stake and reward tokens are local, in-process ledgers. These commands
// exist to fund accounts and the pool for testing.
func GetTokenCmdOpts() *cli.Command {
	tokenFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "token",
			Usage: "stake, reward, or the token symbol",
			Value: "stake",
		}
	}
	return &cli.Command{
		Name:    "token",
		Aliases: []string{"t"},
		Usage:   "Local stake and reward token operations",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:   "mint",
				Usage:  "Mint new tokens into an account - use the pool address to fund rewards",
				Action: TokenMint,
				Flags: []cli.Flag{
					tokenFlag(),
					&cli.StringFlag{Name: "to", Usage: "Receiving account, defaults to --account"},
					&cli.StringFlag{Name: "amount", Usage: "Whole tokens (decimals allowed)", Required: true},
				},
			},
			{
				Name:   "approve",
				Usage:  "Allow the pool to pull up to amount of --account's tokens (replaces any prior allowance)",
				Action: TokenApprove,
				Flags: []cli.Flag{
					tokenFlag(),
					&cli.StringFlag{Name: "amount", Usage: "Whole tokens (decimals allowed)", Required: true},
				},
			},
			{
				Name:    "balance",
				Aliases: []string{"b"},
				Usage:   "Show token balances - of --account, or of every holder",
				Action:  TokenBalance,
				Flags: []cli.Flag{
					tokenFlag(),
				},
			},
		},
	}
}

func TokenMint(ctx context.Context, command *cli.Command) error {
	to := command.String("to")
	if to == "" {
		var err error
		if to, err = App.requireAccount(); err != nil {
			return err
		}
	}
	if err := IsAccountValid(to); err != nil {
		return cli.Exit(err, 1)
	}
	return withSession(ctx, func(s *session) error {
		tok, err := s.tokenFor(command.String("token"))
		if err != nil {
			return err
		}
		amount, err := parseAmountFlag(command, "amount", tok.Decimals())
		if err != nil {
			return err
		}
		if err = tok.Mint(to, amount); err != nil {
			return err
		}
		misc.Infof(App.logger, "minted %s %s to %s", asset.FormatAmount(amount, tok.Decimals()), tok.Symbol(), to)
		return nil
	})
}

func TokenApprove(ctx context.Context, command *cli.Command) error {
	owner, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		tok, err := s.tokenFor(command.String("token"))
		if err != nil {
			return err
		}
		amount, err := parseAmountFlag(command, "amount", tok.Decimals())
		if err != nil {
			return err
		}
		tok.Approve(owner, s.ledger.Address(), amount)
		misc.Infof(App.logger, "%s approved pool %s to move %s %s", owner, s.ledger.Address(), asset.FormatAmount(amount, tok.Decimals()), tok.Symbol())
		return nil
	})
}

func TokenBalance(ctx context.Context, command *cli.Command) error {
	return readSession(ctx, func(s *session) error {
		tok, err := s.tokenFor(command.String("token"))
		if err != nil {
			return err
		}
		accounts := tok.Accounts()
		if App.account != "" {
			accounts = []string{App.account}
		}
		out := new(strings.Builder)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "Account\t%s Balance\tPool Allowance\t\n", tok.Symbol())
		for _, account := range accounts {
			bal, err := tok.BalanceOf(ctx, account)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", account, asset.FormatAmount(bal, tok.Decimals()),
				asset.FormatAmount(tok.Allowance(account, s.ledger.Address()), tok.Decimals()))
		}
		fmt.Fprintf(tw, "TOTAL SUPPLY\t%s\t\t\n", asset.FormatAmount(tok.TotalSupply(), tok.Decimals()))
		tw.Flush()
		fmt.Print(out.String())
		return nil
	})
}
