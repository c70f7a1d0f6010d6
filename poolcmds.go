package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/ledger"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

func GetPoolCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Create, configure and inspect the staking pool",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the pool configuration - prompts for anything not given as a flag",
				Action: PoolInit,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Short name of the pool, also selects .env.{name}", Value: "default"},
					&cli.StringFlag{Name: "owner", Usage: "The only account allowed to change reward configuration"},
					&cli.StringFlag{Name: "address", Usage: "The account holding the pool's stake and reward custody", Value: "pool"},
					&cli.StringFlag{Name: "stake-symbol", Value: "STK"},
					&cli.UintFlag{Name: "stake-decimals", Value: 18},
					&cli.StringFlag{Name: "reward-symbol", Value: "RWD"},
					&cli.UintFlag{Name: "reward-decimals", Value: 18},
					&cli.StringFlag{Name: "precision", Usage: "Scale of the reward per token accumulator", Value: ledger.DefaultPrecision.Dec()},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Don't prompt, use flags and defaults only"},
				},
			},
			{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Show pool totals and the reward period",
				Before:  checkConfigured,
				Action:  PoolStatus,
			},
			{
				Name:    "ledger",
				Aliases: []string{"l"},
				Usage:   "List every staker's stake, checkpoint and rewards",
				Before:  checkConfigured,
				Action:  PoolLedger,
			},
			{
				Name:     "set-reward",
				Usage:    "Set the total reward spread over the configured duration (owner only)",
				Category: "owner",
				Before:   checkConfigured,
				Action:   PoolSetTotalReward,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Usage: "Total reward, in whole reward tokens (decimals allowed)", Required: true},
				},
			},
			{
				Name:     "set-rate",
				Usage:    "Set the reward emitted per second directly (owner only)",
				Category: "owner",
				Before:   checkConfigured,
				Action:   PoolSetRewardRate,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rate", Usage: "Reward tokens per second (decimals allowed)", Required: true},
				},
			},
			{
				Name:     "set-duration",
				Usage:    "Start a new reward period of the given length from now (owner only)",
				Category: "owner",
				Before:   checkConfigured,
				Action:   PoolSetDuration,
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "duration", Usage: "Period length, ie: 720h", Required: true},
				},
			},
			{
				Name:   "audit",
				Usage:  "Check bookkeeping invariants, stake custody and reward solvency",
				Before: checkConfigured,
				Action: PoolAudit,
			},
		},
	}
}

func PoolInit(ctx context.Context, command *cli.Command) error {
	if App.cfg != nil {
		return cli.Exit(fmt.Sprintf("pool %s already configured in %s", App.cfg.Name, App.cfgName), 1)
	}
	cfg := &PoolConfig{
		Name:           command.String("name"),
		Owner:          command.String("owner"),
		Address:        command.String("address"),
		StakeSymbol:    command.String("stake-symbol"),
		StakeDecimals:  uint8(min(command.Uint("stake-decimals"), 255)),
		RewardSymbol:   command.String("reward-symbol"),
		RewardDecimals: uint8(min(command.Uint("reward-decimals"), 255)),
		Precision:      command.String("precision"),
	}
	if !command.Bool("yes") && term.IsTerminal(int(os.Stdin.Fd())) {
		if err := promptPoolConfig(command, cfg); err != nil {
			return err
		}
	}
	if err := IsAccountValid(cfg.Owner); err != nil {
		return cli.Exit(fmt.Sprintf("owner: %v", err), 1)
	}
	if err := IsAccountValid(cfg.Address); err != nil {
		return cli.Exit(fmt.Sprintf("address: %v", err), 1)
	}
	cfg.DataDir = App.dataDir()
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}
	// write the empty pool so the daemon has something to load, and only
	// then the config that points at it
	App.cfg = cfg
	if err := withSession(ctx, func(s *session) error { return nil }); err != nil {
		App.cfg = nil
		return err
	}
	if err := SavePoolConfig(App.cfgName, cfg); err != nil {
		return err
	}
	misc.Infof(App.logger, "pool %s created, owner:%s, custody address:%s, data:%s", cfg.Name, cfg.Owner, cfg.Address, cfg.DataDir)
	return nil
}

// promptPoolConfig asks for every value not explicitly given on the command line.
func promptPoolConfig(command *cli.Command, cfg *PoolConfig) error {
	var err error
	if !command.IsSet("owner") {
		if cfg.Owner, err = getAccount("Enter the account that owns (configures rewards for) the pool", cfg.Owner); err != nil {
			return err
		}
	}
	if !command.IsSet("address") {
		if cfg.Address, err = getAccount("Enter the account holding the pool's custody", cfg.Address); err != nil {
			return err
		}
	}
	if !command.IsSet("stake-symbol") {
		if cfg.StakeSymbol, err = getSymbol("Enter the stake token symbol", cfg.StakeSymbol); err != nil {
			return err
		}
	}
	if !command.IsSet("stake-decimals") {
		decimals, err := getInt("Enter the stake token decimals", int(cfg.StakeDecimals), 0, 36)
		if err != nil {
			return err
		}
		cfg.StakeDecimals = uint8(decimals)
	}
	if !command.IsSet("reward-symbol") {
		if cfg.RewardSymbol, err = getSymbol("Enter the reward token symbol", cfg.RewardSymbol); err != nil {
			return err
		}
	}
	if !command.IsSet("reward-decimals") {
		decimals, err := getInt("Enter the reward token decimals", int(cfg.RewardDecimals), 0, 36)
		if err != nil {
			return err
		}
		cfg.RewardDecimals = uint8(decimals)
	}
	if !command.IsSet("precision") {
		if cfg.Precision, err = getPrecision("Enter the reward per token precision", cfg.Precision); err != nil {
			return err
		}
	}
	if y, _ := yesNo(fmt.Sprintf("Create pool %s owned by %s", cfg.Name, cfg.Owner)); y != "y" {
		return cli.Exit("aborted", 1)
	}
	return nil
}

func PoolStatus(ctx context.Context, command *cli.Command) error {
	return readSession(ctx, func(s *session) error {
		l := s.ledger
		pool := l.Pool()
		rpt, err := l.RewardPerToken()
		if err != nil {
			return err
		}
		custody, err := s.stake.BalanceOf(ctx, l.Address())
		if err != nil {
			return err
		}
		funds, err := s.reward.BalanceOf(ctx, l.Address())
		if err != nil {
			return err
		}
		period := "not started"
		if pool.PeriodFinish != 0 {
			state := "active"
			if l.Finished() {
				state = "finished"
			}
			period = fmt.Sprintf("%s (%s, ends %s)", time.Duration(pool.Duration)*time.Second, state, unixTime(pool.PeriodFinish))
		}

		out := new(strings.Builder)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Pool:\t%s\n", App.cfg.Name)
		fmt.Fprintf(tw, "Owner:\t%s\n", l.Owner())
		fmt.Fprintf(tw, "Custody Address:\t%s\n", l.Address())
		fmt.Fprintf(tw, "Stakers:\t%d\n", len(l.Accounts()))
		fmt.Fprintf(tw, "Total Staked:\t%s %s\n", asset.FormatAmount(&pool.TotalStaked, s.stake.Decimals()), s.stake.Symbol())
		fmt.Fprintf(tw, "Stake Held:\t%s %s\n", asset.FormatAmount(custody, s.stake.Decimals()), s.stake.Symbol())
		fmt.Fprintf(tw, "Reward Funds:\t%s %s\n", asset.FormatAmount(funds, s.reward.Decimals()), s.reward.Symbol())
		fmt.Fprintf(tw, "Total Reward:\t%s %s\n", asset.FormatAmount(&pool.TotalReward, s.reward.Decimals()), s.reward.Symbol())
		fmt.Fprintf(tw, "Reward Rate:\t%s %s/s\n", asset.FormatAmount(&pool.RewardRate, s.reward.Decimals()), s.reward.Symbol())
		fmt.Fprintf(tw, "Reward Period:\t%s\n", period)
		fmt.Fprintf(tw, "Last Update:\t%s\n", unixTime(pool.LastUpdateTime))
		fmt.Fprintf(tw, "Reward Per Token:\t%s (precision %s)\n", rpt.Dec(), l.Precision().Dec())
		tw.Flush()
		fmt.Print(out.String())
		return nil
	})
}

func unixTime(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func PoolLedger(ctx context.Context, command *cli.Command) error {
	return readSession(ctx, func(s *session) error {
		l := s.ledger
		stakeDec, rewardDec := s.stake.Decimals(), s.reward.Decimals()

		var totalEarned uint256.Int
		out := new(strings.Builder)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Account\tStaked\tCheckpoint\tOwed (stored)\tEarned\t")
		for _, id := range l.Accounts() {
			acct, _ := l.Account(id)
			earned, err := l.Earned(id)
			if err != nil {
				return err
			}
			totalEarned.Add(&totalEarned, earned)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", id, asset.FormatAmount(&acct.Staked, stakeDec),
				acct.RewardPerTokenPaid.Dec(), asset.FormatAmount(&acct.RewardOwed, rewardDec), asset.FormatAmount(earned, rewardDec))
		}
		fmt.Fprintf(tw, "TOTAL\t%s\t\t\t%s\t\n", asset.FormatAmount(l.TotalSupply(), stakeDec), asset.FormatAmount(&totalEarned, rewardDec))
		tw.Flush()
		fmt.Print(out.String())
		return nil
	})
}

func parseAmountFlag(command *cli.Command, name string, decimals uint8) (*uint256.Int, error) {
	amount, err := asset.ParseAmount(command.String(name), decimals)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("--%s: %v", name, err), 1)
	}
	return amount, nil
}

func PoolSetTotalReward(ctx context.Context, command *cli.Command) error {
	caller, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		total, err := parseAmountFlag(command, "amount", s.reward.Decimals())
		if err != nil {
			return err
		}
		return s.ledger.SetTotalReward(caller, total)
	})
}

func PoolSetRewardRate(ctx context.Context, command *cli.Command) error {
	caller, err := App.requireAccount()
	if err != nil {
		return err
	}
	return withSession(ctx, func(s *session) error {
		rate, err := parseAmountFlag(command, "rate", s.reward.Decimals())
		if err != nil {
			return err
		}
		return s.ledger.SetRewardRate(caller, rate)
	})
}

func PoolSetDuration(ctx context.Context, command *cli.Command) error {
	caller, err := App.requireAccount()
	if err != nil {
		return err
	}
	duration := command.Duration("duration")
	if duration < time.Second {
		return cli.Exit("--duration must be at least one second", 1)
	}
	return withSession(ctx, func(s *session) error {
		return s.ledger.SetDuration(caller, uint64(duration/time.Second))
	})
}

func PoolAudit(ctx context.Context, command *cli.Command) error {
	return readSession(ctx, func(s *session) error {
		report, err := auditLedger(ctx, s.ledger)
		if err != nil {
			return err
		}
		fmt.Print(report.String(s.stake, s.reward))
		if !report.OK() {
			return cli.Exit("audit found problems", 2)
		}
		return nil
	})
}
