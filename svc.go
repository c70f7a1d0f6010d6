package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

func GetDaemonCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the application as a daemon, serving pool metrics",
		Before:  checkConfigured, // make sure the pool is already configured
		Action:  runAsDaemon,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address to serve prometheus /metrics on, empty to disable",
				Sources: cli.EnvVars("STAKELEDGER_METRICS_ADDR"),
				Value:   ":9100",
			},
			&cli.UintFlag{
				Name:    "epoch",
				Usage:   "Minutes between pool refreshes, aligned to the wall clock",
				Sources: cli.EnvVars("STAKELEDGER_EPOCH_MINUTES"),
				Value:   1,
			},
		},
	}
}

func runAsDaemon(ctx context.Context, cmd *cli.Command) error {
	var wg sync.WaitGroup

	// Create channel used by the signal handler to notify the main goroutine
	// when to stop.
	errc := make(chan error)

	// Setup interrupt handler so SIGINT and SIGTERM stop the services gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)

	newDaemon(cmd.String("listen"), int(min(cmd.Uint("epoch"), 24*60))).start(ctx, &wg)

	misc.Infof(App.logger, "exiting (%v)", <-errc) // wait for termination signal

	// Send cancellation signal to the goroutines.
	cancel()
	misc.Infof(App.logger, "waiting on background tasks..")
	wg.Wait()

	misc.Infof(App.logger, "exited")
	return nil
}
