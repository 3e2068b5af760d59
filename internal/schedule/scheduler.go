// Package schedule provides the recurring-task scheduler that drives quota
// resets and cache sweeps. Components receive a Scheduler instead of owning
// timers so reset policy stays testable with a simulated clock.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// taskTimeout bounds a single task run.
const taskTimeout = 5 * time.Minute

// Clock abstracts wall-clock reads for components that compute window
// boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Task is one unit of recurring work. The context carries the per-run
// timeout; tasks must return promptly once it is done.
type Task func(ctx context.Context)

// Scheduler runs named tasks on recurring boundaries.
type Scheduler interface {
	// Every runs task on a fixed interval until the returned stop function
	// or the scheduler itself is stopped.
	Every(name string, interval time.Duration, task Task) (stop func())
	// DailyAt runs task at each occurrence of the given UTC offset from
	// midnight (offset 0 = midnight UTC).
	DailyAt(name string, offset time.Duration, task Task) (stop func())
	// Stop cancels all scheduled tasks and waits for in-flight runs.
	Stop()
}

// Runner is the production Scheduler backed by tickers and timers.
type Runner struct {
	logger *slog.Logger
	clock  Clock

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a scheduler. A nil clock uses the system clock.
func NewRunner(logger *slog.Logger, clock Clock) *Runner {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger,
		clock:  clock,
		stopCh: make(chan struct{}),
	}
}

// Every implements Scheduler.
func (r *Runner) Every(name string, interval time.Duration, task Task) func() {
	if interval <= 0 {
		interval = time.Hour
	}
	taskStop := make(chan struct{})
	stop := stopOnce(taskStop)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.runTask(name, task)
			case <-taskStop:
				return
			case <-r.stopCh:
				return
			}
		}
	}()

	return stop
}

// DailyAt implements Scheduler.
func (r *Runner) DailyAt(name string, offset time.Duration, task Task) func() {
	taskStop := make(chan struct{})
	stop := stopOnce(taskStop)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for {
			wait := time.Until(NextDailyBoundary(r.clock.Now(), offset))
			timer := time.NewTimer(wait)

			select {
			case <-timer.C:
				r.runTask(name, task)
			case <-taskStop:
				timer.Stop()
				return
			case <-r.stopCh:
				timer.Stop()
				return
			}
		}
	}()

	return stop
}

// Stop implements Scheduler.
func (r *Runner) Stop() {
	r.mu.Lock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("scheduler stopped")
}

func (r *Runner) runTask(name string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	r.logger.Debug("running scheduled task", "task", name)
	task(ctx)
}

// NextDailyBoundary returns the next occurrence of the given UTC offset from
// midnight strictly after now.
func NextDailyBoundary(now time.Time, offset time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	boundary := midnight.Add(offset)
	if !boundary.After(now) {
		boundary = boundary.Add(24 * time.Hour)
	}
	return boundary
}

func stopOnce(ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}
