// Package scheduler implements the single background tick loop per worker
// instance (§4.6): it loads the active-configuration set, evaluates each
// one's due window, and dispatches ExecuteFileCheck commands for due
// configurations under a bounded concurrency cap.
//
// Tick-loop shape grounded on the reference standalone controller
// (adamdecaf-paygate's periodic file-transfer controller: start-up grace,
// ticker, per-tick batch pass) and on aistore's downloader Dispatcher
// (downloader/download.go's jogger/dispatcher split).
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/concurrency"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/schedule"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/telemetry"
)

const startupGrace = 5 * time.Second

// Loop is one worker instance's scheduler (§4.6). Exactly one Loop runs per
// process.
type Loop struct {
	Configs         *store.ConfigurationStore
	Bus             bus.Bus
	Clock           clock.Clock
	Evaluator       *schedule.Evaluator
	Log             *logging.Logger
	Metrics         *telemetry.Metrics
	PollingInterval time.Duration
	ExecutionWindow time.Duration

	sem      *concurrency.DynSemaphore
	inFlight *concurrency.InFlightSet
	stop     *concurrency.StopCh
}

// New builds a Loop. maxConcurrentChecks, pollingIntervalSeconds, and
// executionWindowMinutes come from validated internal/config.Config fields.
func New(configs *store.ConfigurationStore, b bus.Bus, clk clock.Clock, log *logging.Logger, metrics *telemetry.Metrics, maxConcurrentChecks, pollingIntervalSeconds, executionWindowMinutes int) *Loop {
	return &Loop{
		Configs:         configs,
		Bus:             b,
		Clock:           clk,
		Evaluator:       schedule.NewEvaluator(),
		Log:             log,
		Metrics:         metrics,
		PollingInterval: time.Duration(pollingIntervalSeconds) * time.Second,
		ExecutionWindow: time.Duration(executionWindowMinutes) * time.Minute,
		sem:             concurrency.NewDynSemaphore(maxConcurrentChecks),
		inFlight:        concurrency.NewInFlightSet(),
		stop:            concurrency.NewStopCh(),
	}
}

// Stop signals the loop to exit after its current tick.
func (l *Loop) Stop() { l.stop.Close() }

// Release clears configurationID from the in-flight set and returns its
// concurrency permit (§4.6 step 4). It is called by ExecuteFileCheckHandler
// when the execution finishes and by the scheduler itself once its Send
// returns; only the first call for a dispatched id returns the permit, and
// a call for an id that is not in flight does nothing.
func (l *Loop) Release(configurationID string) {
	if l.inFlight.TryMark(configurationID) {
		l.inFlight.Clear(configurationID)
		return
	}
	l.inFlight.Clear(configurationID)
	l.sem.Release()
}

// Run blocks, ticking until Stop is called or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.Clock.After(startupGrace):
	case <-l.stop.Listen():
		return nil
	}

	for {
		if err := l.tick(ctx); err != nil {
			l.Log.WithError(err).Errorf("scheduler: tick failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop.Listen():
			return nil
		case <-l.Clock.After(l.PollingInterval):
		}
	}
}

// tick implements §4.6 steps 2-5: one pass over the active-configuration
// set, dispatching due configurations concurrently, bounded by the global
// semaphore. A slow bus.Send for one configuration must not delay
// evaluating the rest of the due set (errgroup fan-out, not a serial loop).
func (l *Loop) tick(ctx context.Context) error {
	if l.Metrics != nil {
		l.Metrics.SchedulerTicks.Inc()
	}
	active, err := l.Configs.GetAllActive()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range active {
		cfg := cfg
		g.Go(func() error {
			l.evaluateAndDispatch(gctx, cfg)
			return nil
		})
	}
	return g.Wait()
}

func (l *Loop) evaluateAndDispatch(ctx context.Context, cfg *model.Configuration) {
	log := l.Log.WithClient(cfg.ClientID).WithConfiguration(cfg.ID)

	if !l.inFlight.TryMark(cfg.ID) {
		if l.Metrics != nil {
			l.Metrics.ExecutionsSkippedInFlight.Inc()
		}
		log.Debugf("scheduler: skipped, already in flight")
		return
	}

	now := l.Clock.Now()
	next, due := l.dueCheck(cfg, now, log)
	if !due {
		l.inFlight.Clear(cfg.ID)
		return
	}

	if l.Metrics != nil {
		l.Metrics.ConfigurationsDue.Inc()
	}
	if !l.sem.TryAcquire() {
		l.inFlight.Clear(cfg.ID)
		log.Warnf("scheduler: deferred, no concurrency permits available")
		return
	}
	if l.Metrics != nil {
		l.Metrics.ExecutionsDispatched.Inc()
	}

	executionID := uuid.NewString()
	env := bus.Envelope{
		MessageID:      uuid.NewString(),
		MessageType:    bus.TypeExecuteFileCheck,
		ClientID:       cfg.ClientID,
		CorrelationID:  uuid.NewString(),
		IdempotencyKey: cfg.ClientID + "##" + cfg.ID + "##" + executionID,
		OccurredUTC:    now,
		Payload: ExecuteFileCheckCommand{
			ConfigurationID:        cfg.ID,
			ExecutionID:            executionID,
			ScheduledExecutionTime: next,
			IsManualTrigger:        false,
		},
	}

	err := l.Bus.Send(ctx, env)
	l.Release(cfg.ID)
	if err != nil {
		log.WithError(err).Errorf("scheduler: dispatch failed")
	}
}

// dueCheck implements §4.6 step 3's nextExecution computation and due-window
// test.
func (l *Loop) dueCheck(cfg *model.Configuration, now time.Time, log *logging.Logger) (time.Time, bool) {
	var next time.Time
	if cfg.NextScheduledRun != nil {
		next = *cfg.NextScheduledRun
	} else {
		base := now
		if cfg.LastExecutedAt != nil {
			base = *cfg.LastExecutedAt
		}
		n, ok, err := l.Evaluator.Next(cfg.Schedule.CronExpression, cfg.Schedule.Timezone, base)
		if err != nil || !ok {
			log.WithError(err).Warnf("scheduler: unable to evaluate schedule")
			return time.Time{}, false
		}
		next = n
	}

	if next.Before(now.Add(-l.ExecutionWindow)) {
		log.Warnf("scheduler: configuration overdue, dispatching anyway (nextExecution=%s)", next)
		return next, true
	}
	if !next.After(now.Add(l.ExecutionWindow)) {
		return next, true
	}
	return next, false
}

// ExecuteFileCheckCommand is the payload of an ExecuteFileCheck message
// (§6).
type ExecuteFileCheckCommand struct {
	ConfigurationID        string    `json:"configurationId"`
	ExecutionID            string    `json:"executionId"`
	ScheduledExecutionTime time.Time `json:"scheduledExecutionTime"`
	IsManualTrigger        bool      `json:"isManualTrigger"`
}
