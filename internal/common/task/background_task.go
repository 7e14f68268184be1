package task

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

type task struct {
	function    func(ctx *armadacontext.Context)
	interval    time.Duration
	metricName  string
	stopChannel chan bool
	histogram   prometheus.Histogram
}

// BackgroundTaskManager is not threadsafe, it should only be accessed from a single thread.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	registerer    prometheus.Registerer
	clock         clock.Clock
	wg            *sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string, registerer prometheus.Registerer) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		registerer:    registerer,
		clock:         clock.RealClock{},
		wg:            &sync.WaitGroup{},
	}
}

// WithClock replaces the clock used to wait between runs. Must be called before any task is registered.
func (m *BackgroundTaskManager) WithClock(c clock.Clock) *BackgroundTaskManager {
	m.clock = c
	return m
}

// Register starts backgroundTask immediately and then again interval after each run completes.
// A panic in backgroundTask is logged and does not stop subsequent runs.
func (m *BackgroundTaskManager) Register(ctx *armadacontext.Context, backgroundTask func(ctx *armadacontext.Context), interval time.Duration, metricName string) error {
	histogram := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    m.metricsPrefix + metricName + "_latency_seconds",
			Help:    "Background loop " + metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		})
	if m.registerer != nil {
		if err := m.registerer.Register(histogram); err != nil {
			return errors.Wrapf(err, "registering latency metric for task %s", metricName)
		}
	}
	task := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  metricName,
		stopChannel: make(chan bool),
		histogram:   histogram,
	}
	m.startBackgroundTask(armadacontext.WithLogField(ctx, "task", metricName), task)
	m.tasks = append(m.tasks, task)
	return nil
}

// StopAll signals every task to stop and waits up to timeout for them to finish.
// Returns true if the timeout elapsed first.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(ctx *armadacontext.Context, task *task) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runOnce(ctx, task)

		for {
			select {
			case <-m.clock.After(task.interval):
			case <-task.stopChannel:
				return
			}
			m.runOnce(ctx, task)
		}
	}()
}

func (m *BackgroundTaskManager) runOnce(ctx *armadacontext.Context, task *task) {
	start := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			ctx.Log.Errorf("Background task %s panicked: %v\n%s", task.metricName, r, debug.Stack())
		}
		task.histogram.Observe(m.clock.Since(start).Seconds())
	}()
	task.function(ctx)
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	for _, task := range m.tasks {
		close(task.stopChannel)
	}
	m.tasks = nil
}
