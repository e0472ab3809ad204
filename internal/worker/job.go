// Package worker runs deferred pushes scheduled by the plugin engine and
// the chat retention purge.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayrohq/ayro/internal/models"
)

// TypeDeferredPush is the asynq task type carrying a Job.
const TypeDeferredPush = "chat:deferred_push"

type JobKind string

const (
	JobMessage JobKind = "message"
	JobEvent   JobKind = "event"
)

// Job is one push scheduled for later. The user is reloaded when the job
// runs so the push targets the device that is active at that time.
type Job struct {
	Kind    JobKind        `json:"kind"`
	UserID  string         `json:"user_id"`
	Channel models.Channel `json:"channel,omitempty"`
	Agent   *models.Agent  `json:"agent,omitempty"`
	Text    string         `json:"text,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload any            `json:"payload,omitempty"`
}

// Deferrer schedules a Job to run after delay without blocking the caller.
type Deferrer interface {
	Defer(ctx context.Context, delay time.Duration, job Job) error
}

// Pusher is the dispatch surface jobs are executed against.
type Pusher interface {
	PushMessage(ctx context.Context, agent models.Agent, user models.User, text string, ch models.Channel) (models.ChatMessage, error)
	PushEvent(ctx context.Context, user models.User, event string, payload any, ch models.Channel) error
}

type UserLoader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

var errInvalidJob = errors.New("invalid job")

// Runner executes jobs.
type Runner struct {
	pusher Pusher
	users  UserLoader
	logger *slog.Logger
}

func NewRunner(log *slog.Logger, pusher Pusher, users UserLoader) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		pusher: pusher,
		users:  users,
		logger: log.With(slog.String("component", "worker")),
	}
}

func (r *Runner) Run(ctx context.Context, job Job) error {
	if job.UserID == "" {
		return fmt.Errorf("%w: missing user id", errInvalidJob)
	}
	user, err := r.users.GetUser(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", job.UserID, err)
	}
	switch job.Kind {
	case JobMessage:
		if job.Agent == nil {
			return fmt.Errorf("%w: message job without agent", errInvalidJob)
		}
		_, err = r.pusher.PushMessage(ctx, *job.Agent, user, job.Text, job.Channel)
	case JobEvent:
		err = r.pusher.PushEvent(ctx, user, job.Event, job.Payload, job.Channel)
	default:
		return fmt.Errorf("%w: unknown kind %q", errInvalidJob, job.Kind)
	}
	if err != nil {
		return fmt.Errorf("run %s job: %w", job.Kind, err)
	}
	return nil
}
