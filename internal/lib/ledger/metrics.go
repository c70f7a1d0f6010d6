package ledger

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promTotalStaked = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakeledger",
		Name:      "staked_total",
		Help:      "Stake asset base units held by the pool on behalf of accounts",
	})
	promRewardPerToken = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakeledger",
		Name:      "reward_per_token",
		Help:      "Reward-per-token accumulator, in precision scaled units",
	})
	promRewardRate = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakeledger",
		Name:      "reward_rate",
		Help:      "Reward base units emitted per second",
	})
	promNumAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakeledger",
		Name:      "account_count",
	})
	promPeriodFinished = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakeledger",
		Name:      "period_finished",
		Help:      "1 once the reward period has ended",
	})
	promOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "stakeledger",
		Name:      "operations_total",
	}, []string{"op", "result"})
	promRewardPaid = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "stakeledger",
		Name:      "reward_paid_total",
		Help:      "Reward asset base units paid out by claims",
	})
)

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	promOperations.WithLabelValues(op, result).Inc()
}
