package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/ledger"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
	"github.com/TxnLab/stakeledger/internal/lib/store"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *StakeApp {
	log.SetFlags(0)
	logger := misc.NewLogger(logLevel)
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	appConfig := &StakeApp{logger: logger, clock: clockwork.NewRealClock()}

	appConfig.cliCmd = &cli.Command{
		Name:    "stakeledger",
		Usage:   "Staking reward ledger: pool administration, staking operations and a metrics daemon",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			return appConfig.initConfig(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("STAKELEDGER_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Pool configuration file. Defaults to stakeledger/stakeledger.json in the user config dir",
				Sources:     cli.EnvVars("STAKELEDGER_CONFIG"),
				Aliases:     []string{"c"},
				Destination: &appConfig.cfgOverride,
			},
			&cli.StringFlag{
				Name:        "data",
				Usage:       "Directory of the ledger store. Overrides the pool configuration",
				Sources:     cli.EnvVars("STAKELEDGER_DATA"),
				Destination: &appConfig.dataOverride,
			},
			&cli.StringFlag{
				Name:        "account",
				Usage:       "The account acting in this command (staker, token holder or pool owner)",
				Sources:     cli.EnvVars("STAKELEDGER_ACCOUNT"),
				Aliases:     []string{"a"},
				Destination: &appConfig.account,
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetPoolCmdOpts(),
			GetStakeCmdOpts(),
			GetTokenCmdOpts(),
		},
	}
	return appConfig
}

type StakeApp struct {
	cliCmd *cli.Command
	logger *slog.Logger
	clock  clockwork.Clock

	cfgName string
	// cfg is nil until 'pool init' has been run
	cfg *PoolConfig

	// just here for flag bootstrapping destination
	cfgOverride  string
	dataOverride string
	account      string
}

// initConfig loads any requested env file and then the pool configuration, if
// one exists yet.
func (ac *StakeApp) initConfig(ctx context.Context, cmd *cli.Command) error {
	if envfile := cmd.String("envfile"); envfile != "" {
		if err := misc.LoadNamedEnvFile(ac.logger, envfile); err != nil {
			return err
		}
	}
	cfgName, err := ConfigFilename(ac.cfgOverride)
	if err != nil {
		return err
	}
	ac.cfgName = cfgName

	cfg, err := LoadPoolConfig(cfgName)
	if errors.Is(err, os.ErrNotExist) {
		misc.Debugf(ac.logger, "no pool configured yet at %s", cfgName)
		return nil
	}
	if err != nil {
		return cli.Exit(err, 1)
	}
	ac.cfg = cfg
	// .env.{pool} overrides, ie: .env.testpool
	misc.LoadEnvForPool(ac.logger, cfg.Name)
	if ac.account == "" {
		ac.account = os.Getenv("STAKELEDGER_ACCOUNT")
	}
	return nil
}

func (ac *StakeApp) dataDir() string {
	if ac.dataOverride != "" {
		return ac.dataOverride
	}
	if ac.cfg != nil && ac.cfg.DataDir != "" {
		return ac.cfg.DataDir
	}
	return DefaultDataDir(ac.cfgName)
}

func (ac *StakeApp) requireAccount() (string, error) {
	if ac.account == "" {
		return "", cli.Exit("an acting account is required, use --account or STAKELEDGER_ACCOUNT", 1)
	}
	return ac.account, nil
}

func checkConfigured(ctx context.Context, command *cli.Command) error {
	if App.cfg == nil {
		return cli.Exit(fmt.Sprintf("pool not configured (%s), run 'pool init' first", App.cfgName), 1)
	}
	return nil
}

// session is the pool state loaded from the store for the duration of one
// command.
type session struct {
	store  *store.Store
	ledger *ledger.Ledger
	stake  *asset.Token
	reward *asset.Token
	events *ledger.Recorder
}

// loadSession rebuilds the ledger and both tokens from the store. A store that
// was never written yields an empty pool.
func loadSession(ctx context.Context, logger *slog.Logger, clock clockwork.Clock, cfg *PoolConfig, dataDir string) (*session, error) {
	st, err := store.Open(ctx, logger, dataDir)
	if err != nil {
		return nil, err
	}
	s, err := restoreSession(st, logger, clock, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

func restoreSession(st *store.Store, logger *slog.Logger, clock clockwork.Clock, cfg *PoolConfig) (*session, error) {
	precision, err := cfg.PrecisionInt()
	if err != nil {
		return nil, err
	}
	s := &session{store: st, events: &ledger.Recorder{}}
	ledgerCfg := ledger.Config{
		Logger:    logger,
		Clock:     clock,
		Address:   cfg.Address,
		Owner:     cfg.Owner,
		Precision: precision,
		Sink:      s.events,
	}

	state, err := st.LoadState()
	if errors.Is(err, store.ErrNotInitialized) {
		s.stake = asset.NewToken(cfg.StakeSymbol, cfg.StakeDecimals)
		s.reward = asset.NewToken(cfg.RewardSymbol, cfg.RewardDecimals)
		s.ledger, err = ledger.New(ledgerCfg, s.stake, s.reward)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	s.stake, err = restoreToken(state, cfg.StakeSymbol, cfg.StakeDecimals)
	if err != nil {
		return nil, err
	}
	s.reward, err = restoreToken(state, cfg.RewardSymbol, cfg.RewardDecimals)
	if err != nil {
		return nil, err
	}
	s.ledger, err = ledger.Restore(ledgerCfg, s.stake, s.reward, state.Ledger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func restoreToken(state *store.State, symbol string, decimals uint8) (*asset.Token, error) {
	snap, ok := state.Token(symbol)
	if !ok {
		return asset.NewToken(symbol, decimals), nil
	}
	if snap.Decimals != decimals {
		return nil, fmt.Errorf("%w: stored %s token has %d decimals, configured %d",
			ledger.ErrInvalidConfig, symbol, snap.Decimals, decimals)
	}
	return asset.RestoreToken(snap)
}

// save writes the ledger and both tokens in one batch.
func (s *session) save() error {
	return s.store.SaveState(store.State{
		Ledger: s.ledger.Snapshot(),
		Tokens: []asset.TokenSnapshot{s.stake.Snapshot(), s.reward.Snapshot()},
	})
}

func (s *session) close() error {
	return s.store.Close()
}

// withSession loads the pool, runs one operation and, only if it succeeded,
// saves the complete state. Events are reported once they are durable.
func withSession(ctx context.Context, fn func(s *session) error) error {
	s, err := loadSession(ctx, App.logger, App.clock, App.cfg, App.dataDir())
	if err != nil {
		return err
	}
	defer s.close()

	if err = fn(s); err != nil {
		return err
	}
	if err = s.save(); err != nil {
		return err
	}
	s.events.Replay(ledger.LogSink(App.logger))
	return nil
}

// readSession loads the pool for a query. Nothing is saved.
func readSession(ctx context.Context, fn func(s *session) error) error {
	s, err := loadSession(ctx, App.logger, App.clock, App.cfg, App.dataDir())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

// tokenFor picks the stake or reward token by role or symbol.
func (s *session) tokenFor(name string) (*asset.Token, error) {
	switch name {
	case "stake", s.stake.Symbol():
		return s.stake, nil
	case "reward", s.reward.Symbol():
		return s.reward, nil
	}
	return nil, cli.Exit(fmt.Sprintf("unknown token %q, use stake, reward, %s or %s", name, s.stake.Symbol(), s.reward.Symbol()), 1)
}
