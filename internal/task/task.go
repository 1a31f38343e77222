package task

import (
	"bytes"
	"context"
	"runtime"
	"sync"
	"time"

	"crypto-alert-bot/internal/metrics"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Func is one invocation of a periodic task.
type Func func(ctx context.Context) error

// Runner invokes a task on a fixed interval and never runs two invocations of
// the same task at once; a tick that arrives while the previous run is still
// going is skipped.
type Runner struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       Func
	running  sync.Mutex
}

// New creates a runner. A zero timeout bounds each run by the interval.
func New(name string, interval, timeout time.Duration, fn Func) *Runner {
	if timeout <= 0 {
		timeout = interval
	}
	return &Runner{
		name:     name,
		interval: interval,
		timeout:  timeout,
		fn:       fn,
	}
}

func (r *Runner) Name() string {
	return r.name
}

// RunOnce runs the task unless a run is already in progress. It reports
// whether the task ran.
func (r *Runner) RunOnce(ctx context.Context) (ran bool) {
	if !r.running.TryLock() {
		metrics.SweepsSkipped.WithLabelValues(r.name).Inc()
		log.Debugf("task %s still running, skipping", r.name)
		return false
	}
	ran = true
	defer r.running.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			log.Errorf("task %s panicked: %v\nStack trace: %s", r.name, rec, bytes.TrimRight(stackBuf[:stackSize], "\x00"))
		}
	}()

	metrics.SweepsTotal.WithLabelValues(r.name).Inc()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	if err := r.fn(runCtx); err != nil {
		log.Errorf("task %s failed: %v", r.name, err)
	} else {
		log.Debugf("task %s finished in %s", r.name, time.Since(start))
	}
	return ran
}

// Run calls the task immediately and then on every tick until ctx is done.
// Each run happens in its own goroutine so a slow run makes later ticks
// skip instead of queueing up.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.Errorf("task %s: interval must be positive", r.name)
	}
	log.Infof("starting task %s every %s", r.name, r.interval)

	var wg sync.WaitGroup
	defer wg.Wait()

	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunOnce(ctx)
		}()
	}

	launch()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			launch()
		}
	}
}
