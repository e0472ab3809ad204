package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/channel/adapters/messenger"
	"github.com/ayrohq/ayro/internal/channel/adapters/mobile"
	"github.com/ayrohq/ayro/internal/channel/adapters/slack"
	"github.com/ayrohq/ayro/internal/channel/adapters/web"
	"github.com/ayrohq/ayro/internal/commands"
	"github.com/ayrohq/ayro/internal/config"
	"github.com/ayrohq/ayro/internal/db"
	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/handlers"
	"github.com/ayrohq/ayro/internal/healthcheck"
	integrationchecker "github.com/ayrohq/ayro/internal/healthcheck/checkers/integration"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/integrations"
	"github.com/ayrohq/ayro/internal/logger"
	"github.com/ayrohq/ayro/internal/plugins"
	"github.com/ayrohq/ayro/internal/push"
	"github.com/ayrohq/ayro/internal/server"
	"github.com/ayrohq/ayro/internal/store"
	"github.com/ayrohq/ayro/internal/store/memory"
	"github.com/ayrohq/ayro/internal/store/postgres"
	"github.com/ayrohq/ayro/internal/worker"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideSlackAdapter,
			provideMessengerAdapter,
			provideChannelRegistry,
			provideIdentityService,
			provideDispatchService,
			provideRunner,
			provideDeferrer,
			providePluginEngine,
			provideCommandService,
			provideSlackInstaller,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideAppsHandler),
			provideServerHandler(provideMessengerHandler),
			provideServerHandler(provideSlackHandler),
			provideServer,
		),
		fx.Invoke(
			wireTriggers,
			startWorkerServer,
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (store.Store, error) {
	if strings.EqualFold(cfg.Storage.Driver, config.StorageDriverMemory) {
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return postgres.New(log, conn), nil
}

func provideSlackAdapter(log *slog.Logger, st store.Store, cfg config.Config) *slack.Adapter {
	return slack.NewAdapter(log, st, slack.Options{APIURL: cfg.Slack.APIURL, Timeout: cfg.Slack.Timeout()})
}

func provideMessengerAdapter(log *slog.Logger, cfg config.Config) *messenger.Adapter {
	return messenger.NewAdapter(log, cfg.Messenger.GraphURL, cfg.Messenger.Timeout())
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config, slackAdapter *slack.Adapter, messengerAdapter *messenger.Adapter) (*channel.Registry, error) {
	fcm := push.NewFCM(log, cfg.Push.FCMURL, cfg.Push.Timeout())
	gateway := push.NewWebGateway(log, cfg.Push.WebGatewayURL, cfg.Push.Timeout())

	registry := channel.NewRegistry()
	registry.MustRegister(web.NewWebsiteAdapter(log, gateway))
	registry.MustRegister(web.NewWordpressAdapter(log, gateway))
	registry.MustRegister(mobile.NewAndroidAdapter(log, fcm))
	registry.MustRegister(mobile.NewIOSAdapter(log, fcm))
	registry.MustRegister(messengerAdapter)
	registry.MustRegister(slackAdapter)
	if missing := registry.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("channels without adapter: %v", missing)
	}
	return registry, nil
}

func provideIdentityService(log *slog.Logger, st store.Store, messengerAdapter *messenger.Adapter) *identity.Service {
	return identity.NewService(log, st, messengerAdapter)
}

func provideDispatchService(log *slog.Logger, st store.Store, registry *channel.Registry) *dispatch.Service {
	return dispatch.NewService(log, st, registry)
}

func provideRunner(log *slog.Logger, dispatchService *dispatch.Service, st store.Store) *worker.Runner {
	return worker.NewRunner(log, dispatchService, st)
}

func provideDeferrer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, runner *worker.Runner) (worker.Deferrer, error) {
	if strings.EqualFold(cfg.Worker.Driver, config.WorkerDriverAsynq) {
		deferrer, err := worker.NewAsynqDeferrer(log, cfg.Worker.RedisURL)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return deferrer.Close() }})
		return deferrer, nil
	}
	deferrer := worker.NewLocalDeferrer(log, runner)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return deferrer.Stop(ctx) }})
	return deferrer, nil
}

func providePluginEngine(log *slog.Logger, st store.Store, deferrer worker.Deferrer, cfg config.Config) *plugins.Engine {
	return plugins.NewEngine(log, st, deferrer, cfg.Server.PublicURL)
}

func provideCommandService(log *slog.Logger, identityService *identity.Service, slackAdapter *slack.Adapter, dispatchService *dispatch.Service) *commands.Service {
	return commands.NewService(log, identityService, slackAdapter, dispatchService)
}

func provideSlackInstaller(log *slog.Logger, cfg config.Config, st store.Store, registry *channel.Registry, slackAdapter *slack.Adapter) *integrations.SlackInstaller {
	return integrations.NewSlackInstaller(log, cfg.Slack, st, registry, slackAdapter)
}

func provideAuthHandler(log *slog.Logger, identityService *identity.Service, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, identityService, cfg.Auth.JWTSecret, cfg.Auth.ExpiresIn())
}

func provideChatHandler(log *slog.Logger, dispatchService *dispatch.Service, st store.Store) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, dispatchService, st)
}

func provideAppsHandler(log *slog.Logger, st store.Store, dispatchService *dispatch.Service, engine *plugins.Engine, cfg config.Config) *handlers.AppsHandler {
	checker := healthcheck.Checkers{integrationchecker.NewChecker(log, st)}
	return handlers.NewAppsHandler(log, st, dispatchService, engine, checker, cfg.Server.PublicURL)
}

func provideMessengerHandler(log *slog.Logger, cfg config.Config, registry *channel.Registry, identityService *identity.Service, dispatchService *dispatch.Service) *handlers.MessengerHandler {
	return handlers.NewMessengerHandler(log, cfg.Messenger, registry, identityService, dispatchService)
}

func provideSlackHandler(log *slog.Logger, cfg config.Config, commandService *commands.Service, installer *integrations.SlackInstaller, registry *channel.Registry) *handlers.SlackHandler {
	return handlers.NewSlackHandler(log, cfg.Slack.SigningSecret, commandService, installer, registry)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers)
}

// wireTriggers closes the dispatch -> plugins -> worker -> dispatch loop.
func wireTriggers(dispatchService *dispatch.Service, engine *plugins.Engine) {
	dispatchService.SetTriggers(engine)
}

func startWorkerServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, runner *worker.Runner) error {
	if !strings.EqualFold(cfg.Worker.Driver, config.WorkerDriverAsynq) {
		return nil
	}
	srv, err := worker.NewServer(log, cfg.Worker.RedisURL, cfg.Worker.Concurrency, runner)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return srv.Start() },
		OnStop:  func(ctx context.Context) error { srv.Shutdown(); return nil },
	})
	return nil
}

func startRetention(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, st store.Store) error {
	if strings.TrimSpace(cfg.Retention.Schedule) == "" {
		log.Info("chat retention disabled")
		return nil
	}
	retention, err := worker.NewRetention(log, st, cfg.Retention.Schedule, cfg.Retention.Window())
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { retention.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return retention.Stop(ctx) },
	})
	return nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return errors.New("auth.jwt_secret is required")
			}
			logger.Info("starting ayro", slog.String("addr", cfg.Server.Addr), slog.String("storage", cfg.Storage.Driver), slog.String("worker", cfg.Worker.Driver))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
