// Package aggregator runs the recurring pass that converts autoprinter
// capacity into ticket production for every user at once.
package aggregator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ever_greater/internal/ledger"
	"ever_greater/internal/metrics"
	"ever_greater/internal/push"
	"ever_greater/internal/utils"
)

// Aggregator owns the tick schedule. It is constructed at startup and runs
// until its context is cancelled; a failed firing is logged and skipped, and
// the next firing proceeds normally.
type Aggregator struct {
	ledger   ledger.Ledger
	disp     *push.Dispatcher
	reg      *push.Registry
	rdb      *redis.Client
	interval time.Duration
}

func New(l ledger.Ledger, disp *push.Dispatcher, reg *push.Registry, rdb *redis.Client, interval time.Duration) *Aggregator {
	return &Aggregator{ledger: l, disp: disp, reg: reg, rdb: rdb, interval: interval}
}

// Run blocks, firing one tick per interval until ctx is cancelled. Call it
// from its own goroutine.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("aggregator stopped")
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick performs one aggregation pass: ledger mutation first, then push
// delivery for every bound user. A panic or error never escapes to the
// schedule.
func (a *Aggregator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("aggregation tick panicked")
		}
	}()
	res, err := a.ledger.RunAggregationTick(ctx)
	if err != nil {
		// Infra failure: log with context and skip this firing
		logrus.WithField("error", err.Error()).Error("aggregation tick failed")
		return
	}
	metrics.AggregationTicks.Inc()
	if res.TotalProduced == 0 {
		return
	}
	metrics.AggregationProduced.Add(float64(res.TotalProduced))
	logrus.WithFields(logrus.Fields{
		"produced": res.TotalProduced,
		"users":    len(res.PerUser),
		"count":    res.NewCount,
	}).Info("aggregation tick")

	// The cached public count is stale the moment the tick commits
	if a.rdb != nil {
		_ = utils.DeleteCache(ctx, a.rdb, utils.CountCacheKey)
	}
	a.disp.BroadcastCount(res.NewCount)

	// Re-read and push fresh fields for every user currently bound in the
	// registry, whether or not they produced this tick
	for _, userID := range a.reg.BoundUserIDs() {
		user, err := a.ledger.User(ctx, userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("post-tick user read failed")
			continue
		}
		if a.rdb != nil {
			_ = utils.DeleteCache(ctx, a.rdb, utils.UserCacheKey(userID))
		}
		a.disp.SendUserUpdate(userID, push.Snapshot(user))
	}
}
