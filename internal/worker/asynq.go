package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqDeferrer enqueues jobs into redis so they survive restarts.
// Pushes are advisory and are never retried.
type AsynqDeferrer struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewAsynqDeferrer(log *slog.Logger, redisURL string) (*AsynqDeferrer, error) {
	if log == nil {
		log = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &AsynqDeferrer{
		client: asynq.NewClient(opt),
		logger: log.With(slog.String("component", "deferrer"), slog.String("driver", "asynq")),
	}, nil
}

func (d *AsynqDeferrer) Defer(ctx context.Context, delay time.Duration, job Job) error {
	task, err := newDeferredPushTask(job)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDeferredPush, err)
	}
	d.logger.Debug("job enqueued", slog.String("task_id", info.ID), slog.String("kind", string(job.Kind)), slog.Duration("delay", delay))
	return nil
}

func (d *AsynqDeferrer) Close() error {
	return d.client.Close()
}

func newDeferredPushTask(job Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return asynq.NewTask(TypeDeferredPush, payload), nil
}

// Server consumes deferred pushes enqueued by AsynqDeferrer.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewServer(log *slog.Logger, redisURL string, concurrency int, runner *Runner) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := log.With(slog.String("component", "worker_server"))
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     concurrency,
		ShutdownTimeout: 10 * time.Second,
		Logger:          &asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeDeferredPush, handleDeferredPush(runner))
	return &Server{srv: srv, mux: mux, logger: logger}, nil
}

func (s *Server) Start() error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	s.logger.Info("worker server started")
	return nil
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

func handleDeferredPush(runner *Runner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var job Job
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if err := runner.Run(ctx, job); err != nil {
			if errors.Is(err, errInvalidJob) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

// asynqLogger routes asynq's logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (a *asynqLogger) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a *asynqLogger) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
