package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/repeat"

	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

// Daemon periodically reloads the pool from the store, refreshes the metrics
// gauges and audits the books. It never mutates the pool, and only holds the
// store open while loading so CLI commands can run alongside it.
type Daemon struct {
	logger       *slog.Logger
	clock        clockwork.Clock
	cfg          *PoolConfig
	dataDir      string
	listenAddr   string
	epochMinutes int

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	periodKnown    bool
	periodFinished bool
	lastReport     *AuditReport
}

func newDaemon(listenAddr string, epochMinutes int) *Daemon {
	return &Daemon{
		logger:       App.logger,
		clock:        App.clock,
		cfg:          App.cfg,
		dataDir:      App.dataDir(),
		listenAddr:   listenAddr,
		epochMinutes: max(epochMinutes, 1),
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting stakeledger daemon", "pool", d.cfg.Name, "data", d.dataDir)

	if d.listenAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveMetrics(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Refresher(ctx)
	}()
}

func (d *Daemon) serveMetrics(ctx context.Context) {
	listener, err := net.Listen("tcp", d.listenAddr)
	if err != nil {
		d.logger.Error("failed to start prometheus metrics server listener", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	d.logger.Info("prometheus metrics server listening", "address", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Error("prometheus metrics server failed", "error", err)
	}
}

// Refresher reloads the pool once at startup and then at every epoch boundary
// (ie: every minute on the minute).
func (d *Daemon) Refresher(ctx context.Context) {
	defer d.logger.Info("Exiting Refresher")
	d.logger.Info("Starting Refresher", "epoch minutes", d.epochMinutes)

	if err := d.refreshWithRetry(ctx); err != nil {
		misc.Errorf(d.logger, "initial refresh failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(durationToNextEpoch(d.clock.Now(), d.epochMinutes)):
			if err := d.refreshWithRetry(ctx); err != nil {
				// try again next epoch
				misc.Warnf(d.logger, "refresh failed: %v", err)
			}
		}
	}
}

func (d *Daemon) refreshWithRetry(ctx context.Context) error {
	return repeat.Repeat(
		repeat.Fn(func() error {
			if err := d.refresh(ctx); err != nil {
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(5),
		repeat.FnOnError(func(err error) error {
			d.logger.Warn("retrying pool refresh", "error", err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 1 * time.Second,
				MaxDelay:  5 * time.Second,
			}).Set(),
		),
	)
}

// refresh loads the current pool state, updates the gauges, audits it and logs
// reward period transitions.
func (d *Daemon) refresh(ctx context.Context) error {
	s, err := loadSession(ctx, d.logger, d.clock, d.cfg, d.dataDir)
	if err != nil {
		return err
	}
	// everything below works on the in-memory copy
	_ = s.close()

	if err = s.ledger.UpdateMetrics(); err != nil {
		return err
	}
	report, err := auditLedger(ctx, s.ledger)
	if err != nil {
		return err
	}
	for _, problem := range report.Problems {
		misc.Errorf(d.logger, "[AUDIT] pool %s: %s", d.cfg.Name, problem)
	}

	pool := s.ledger.Pool()
	finished := pool.PeriodFinish != 0 && s.ledger.Finished()

	d.Lock()
	wasKnown, wasFinished := d.periodKnown, d.periodFinished
	d.periodKnown, d.periodFinished = true, finished
	d.lastReport = report
	d.Unlock()

	switch {
	case wasKnown && !wasFinished && finished:
		misc.Infof(d.logger, "reward period of pool %s finished at %s", d.cfg.Name, unixTime(pool.PeriodFinish))
	case wasKnown && wasFinished && !finished:
		misc.Infof(d.logger, "new reward period of pool %s running until %s", d.cfg.Name, unixTime(pool.PeriodFinish))
	}
	misc.Debugf(d.logger, "pool %s refreshed, stakers:%d, staked:%s", d.cfg.Name, report.Accounts, report.TotalStaked.Dec())
	return nil
}

// PeriodFinished reports the reward period state seen by the last refresh.
func (d *Daemon) PeriodFinished() (finished bool, known bool) {
	d.RLock()
	defer d.RUnlock()
	return d.periodFinished, d.periodKnown
}

func (d *Daemon) LastReport() *AuditReport {
	d.RLock()
	defer d.RUnlock()
	return d.lastReport
}

// durationToNextEpoch returns the time until the next wall-clock multiple of
// epochMinutes.
func durationToNextEpoch(curTime time.Time, epochMinutes int) time.Duration {
	epoch := time.Duration(epochMinutes) * time.Minute
	next := curTime.Truncate(epoch).Add(epoch)
	return next.Sub(curTime)
}
