package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Defer once the deferrer is shutting down.
var ErrStopped = errors.New("deferrer stopped")

const localJobTimeout = 30 * time.Second

// LocalDeferrer runs jobs on in-process timers. Pending jobs are lost on
// restart.
type LocalDeferrer struct {
	runner  *Runner
	logger  *slog.Logger
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
	stopped bool
}

func NewLocalDeferrer(log *slog.Logger, runner *Runner) *LocalDeferrer {
	if log == nil {
		log = slog.Default()
	}
	return &LocalDeferrer{
		runner: runner,
		logger: log.With(slog.String("component", "deferrer"), slog.String("driver", "local")),
		timers: map[*time.Timer]struct{}{},
	}
}

func (d *LocalDeferrer) Defer(_ context.Context, delay time.Duration, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		delete(d.timers, timer)
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), localJobTimeout)
		defer cancel()
		if err := d.runner.Run(ctx, job); err != nil {
			d.logger.Warn("deferred job failed", slog.String("kind", string(job.Kind)), slog.String("user_id", job.UserID), slog.Any("error", err))
		}
	})
	d.timers[timer] = struct{}{}
	return nil
}

// Stop cancels pending timers and waits for running jobs until ctx is done.
func (d *LocalDeferrer) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	for timer := range d.timers {
		if timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, timer)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
