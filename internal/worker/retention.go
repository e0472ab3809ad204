package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ChatPurger deletes chat messages older than a cutoff.
type ChatPurger interface {
	DeleteChatMessagesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Retention purges expired chat messages on a cron schedule.
type Retention struct {
	cron   *cron.Cron
	purger ChatPurger
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewRetention(log *slog.Logger, purger ChatPurger, schedule string, window time.Duration) (*Retention, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Retention{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		purger: purger,
		window: window,
		now:    time.Now,
		logger: log.With(slog.String("component", "retention")),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info("retention scheduled", slog.Duration("window", r.window))
}

// Stop waits for a running purge until ctx is done.
func (r *Retention) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.Purge(ctx); err != nil {
		r.logger.Warn("retention purge failed", slog.Any("error", err))
	}
}

// Purge deletes messages older than the retention window.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.window)
	n, err := r.purger.DeleteChatMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete chat messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		r.logger.Info("chat messages purged", slog.Int64("count", n), slog.Time("before", cutoff))
	}
	return n, nil
}
