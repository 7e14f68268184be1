// Package scheduler runs stats cycles periodically and hands every non-empty snapshot to a delivery.Sender.
package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/renstrom/shortuuid"
	"go.uber.org/atomic"
	"k8s.io/utils/clock"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/logging"
	"github.com/G-Research/phonehome/internal/common/task"
	"github.com/G-Research/phonehome/internal/statsaggregator/delivery"
	"github.com/G-Research/phonehome/internal/statsaggregator/metrics"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

const (
	taskName        = "stats_cycle"
	releaseTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

type Config struct {
	// Time between the end of one cycle and the start of the next.
	CyclePeriod time.Duration
	// Cycles requested sooner than this after the previous cycle finished are skipped.
	MinTimeSinceLastCycle time.Duration
	// A cycle still running after this long is abandoned.
	CycleTimeout time.Duration
}

type Assembler interface {
	Assemble(ctx *armadacontext.Context) (*snapshot.Snapshot, error)
}

type CycleReporter interface {
	ReportCycleSucceeded(s *snapshot.Snapshot, finishedAt time.Time)
	ReportCycleFailed()
	ReportCycleSkipped()
	ReportDeliveryFailed()
}

// Scheduler runs at most one cycle at a time. Cycle failures are logged and never stop the scheduler.
type Scheduler struct {
	config    Config
	assembler Assembler
	sender    delivery.Sender
	lock      CycleLock
	reporter  CycleReporter
	tasks     *task.BackgroundTaskManager
	clock     clock.Clock
	inFlight  *atomic.Bool
	// Unix nanoseconds at which the last cycle finished, zero before the first cycle.
	lastCycleEnd *atomic.Int64
	skipped      *atomic.Int64
	// Set once a cycle has been attempted, for health checks.
	started *atomic.Bool
}

func NewScheduler(
	config Config,
	assembler Assembler,
	sender delivery.Sender,
	lock CycleLock,
	reporter CycleReporter,
	registerer prometheus.Registerer,
) *Scheduler {
	return &Scheduler{
		config:       config,
		assembler:    assembler,
		sender:       sender,
		lock:         lock,
		reporter:     reporter,
		tasks:        task.NewBackgroundTaskManager(metrics.MetricPrefix, registerer),
		clock:        clock.RealClock{},
		inFlight:     atomic.NewBool(false),
		lastCycleEnd: atomic.NewInt64(0),
		skipped:      atomic.NewInt64(0),
		started:      atomic.NewBool(false),
	}
}

// WithClock replaces the clock used for scheduling. Must be called before Run.
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	s.clock = c
	s.tasks.WithClock(c)
	return s
}

// Run starts the first cycle immediately and then one every CyclePeriod until ctx is cancelled.
func (s *Scheduler) Run(ctx *armadacontext.Context) error {
	ctx.Log.Infof("Central statistics gathering enabled; cycling every %s", s.config.CyclePeriod)
	err := s.tasks.Register(ctx, func(ctx *armadacontext.Context) { s.TriggerCycle(ctx) }, s.config.CyclePeriod, taskName)
	if err != nil {
		return err
	}
	<-ctx.Done()
	ctx.Log.Info("Stopping stats scheduler")
	if s.tasks.StopAll(shutdownTimeout) {
		ctx.Log.Warnf("Stats cycle did not stop within %s", shutdownTimeout)
	}
	return nil
}

// TriggerCycle runs a cycle on the calling goroutine unless one is already in flight or the previous one
// finished less than MinTimeSinceLastCycle ago. Returns false if the cycle was skipped.
func (s *Scheduler) TriggerCycle(ctx *armadacontext.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip(ctx, "a cycle is already in flight")
		return false
	}
	defer s.inFlight.Store(false)

	if last := s.lastCycleEnd.Load(); last != 0 {
		if since := s.clock.Since(time.Unix(0, last)); since < s.config.MinTimeSinceLastCycle {
			s.skip(ctx, "the previous cycle finished "+since.String()+" ago")
			return false
		}
	}
	if skipped := s.skipped.Swap(0); skipped > 0 {
		ctx.Log.Infof("Resuming stats cycles after skipping %d", skipped)
	}

	s.started.Store(true)
	s.runCycle(ctx)
	s.lastCycleEnd.Store(s.clock.Now().UnixNano())
	return true
}

func (s *Scheduler) skip(ctx *armadacontext.Context, reason string) {
	s.reporter.ReportCycleSkipped()
	if s.skipped.Inc() == 1 {
		ctx.Log.Infof("Skipping stats cycle: %s", reason)
	} else {
		ctx.Log.Debugf("Skipping stats cycle: %s", reason)
	}
}

func (s *Scheduler) runCycle(parent *armadacontext.Context) {
	ctx := armadacontext.WithLogField(parent, "cycleId", shortuuid.New())
	ctx, cancel := armadacontext.WithTimeout(ctx, s.config.CycleTimeout)
	defer cancel()

	release, acquired, err := s.lock.TryAcquire(ctx, s.config.CycleTimeout)
	if err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Stats cycle failed")
		s.reporter.ReportCycleFailed()
		return
	}
	if !acquired {
		ctx.Log.Info("Stats cycle is running on another replica")
		s.reporter.ReportCycleSkipped()
		return
	}
	defer func() {
		releaseCtx, cancel := armadacontext.WithTimeout(armadacontext.Detached(ctx), releaseTimeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("Could not release cycle lock")
		}
	}()

	start := s.clock.Now()
	stats, err := s.assembler.Assemble(ctx)
	if err == nil && ctx.Err() != nil {
		err = errors.Wrapf(ctx.Err(), "stats cycle exceeded %s", s.config.CycleTimeout)
	}
	if err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Stats cycle failed; no snapshot will be sent")
		s.reporter.ReportCycleFailed()
		return
	}
	finishedAt := s.clock.Now()
	s.reporter.ReportCycleSucceeded(stats, finishedAt)
	ctx.Log.Infof("Assembled stats snapshot in %s", finishedAt.Sub(start))

	if stats.IsEmpty() {
		return
	}
	if err := s.sender.Send(ctx, stats); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Failed to deliver stats snapshot")
		s.reporter.ReportDeliveryFailed()
	}
}

// Check reports unhealthy until the first cycle has been attempted.
func (s *Scheduler) Check() error {
	if s.started.Load() {
		return nil
	}
	return errors.New("no stats cycle has run yet")
}
