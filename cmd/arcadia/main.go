package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/botlist/arcadia/internal/api/http"
	"github.com/botlist/arcadia/internal/api/http/handlers"
	"github.com/botlist/arcadia/internal/auth"
	"github.com/botlist/arcadia/internal/commands"
	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/discord"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/observability"
	"github.com/botlist/arcadia/internal/persistence"
	"github.com/botlist/arcadia/internal/ratelimit"
	"github.com/botlist/arcadia/internal/repository"
	"github.com/botlist/arcadia/internal/service"
	"github.com/botlist/arcadia/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := events.NewInMemoryDispatcher()

	store := repository.NewStore(pg.Pool)
	transactor := repository.NewTransactor(pg.Pool)
	authz := service.NewAuthorizer(store)

	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}

	notifications := service.NewNotificationService(cfg.Discord, service.NotificationDependencies{
		Dispatcher: dispatcher,
		Notifier:   discord.NewNotifier(session, logger),
		BotRepo:    store.Bots,
		TeamRepo:   store.Teams,
		Logger:     logger,
	})
	notifications.RegisterHandlers()

	queueService := service.NewQueueService(cfg.Queue, service.QueueDependencies{
		Store:      store,
		Transactor: transactor,
		Authorizer: authz,
		Dispatcher: dispatcher,
	})
	rpcService := service.NewRPCService(service.RPCDependencies{
		Store:      store,
		Transactor: transactor,
		Authorizer: authz,
		Queue:      queueService,
		Limiter:    ratelimit.New(cfg.RateLimit),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	onboardingService := service.NewOnboardingService(cfg.Onboarding, service.OnboardingDependencies{
		UserRepo:     store.Users,
		StaffRepo:    store.Staff,
		Authorizer:   authz,
		Guilds:       discord.NewGuildManager(session, cfg.Onboarding.SandboxGuildTemplate, logger),
		Interactions: persistence.NewInteractionStore(redis),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
	})
	adminService := service.NewStaffAdminService(service.StaffAdminDependencies{
		Store:      store,
		Transactor: transactor,
		Authorizer: authz,
		Dispatcher: dispatcher,
	})
	panelAuth := service.NewPanelAuthService(cfg.Auth, store.Staff)

	registry := commands.NewRegistry(commands.Services{
		Queue:      queueService,
		Onboarding: onboardingService,
		RPC:        rpcService,
		PanelAuth:  panelAuth,
		GuideURL:   cfg.Onboarding.GuideURL,
	})
	bot := discord.NewBot(session, commands.NewDispatcher(commands.DispatcherDependencies{
		Registry:   registry,
		Onboarding: onboardingService,
		Authorizer: authz,
		Locker:     persistence.NewActorLocker(redis, cfg.Onboarding.ActorLockTTL),
		Logger:     logger,
	}), cfg.Discord, logger)
	if err := bot.Open(); err != nil {
		logger.Fatal("failed to start discord bot", zap.Error(err))
	}

	scheduler := worker.NewScheduler(logger, metrics, 0)
	jobs := []struct {
		spec string
		job  worker.Job
	}{
		{cfg.Jobs.AutoUnclaimSpec, worker.NewAutoUnclaimJob(store.Bots, dispatcher, cfg.Queue.ClaimStaleAfter, logger)},
		{cfg.Jobs.StaffResyncSpec, worker.NewStaffResyncJob(worker.StaffResyncDependencies{
			UserRepo:   store.Users,
			StaffRepo:  store.Staff,
			Roles:      discord.NewRoleSource(session, cfg.Discord.StaffGuildID),
			Dispatcher: dispatcher,
			Logger:     logger,
		})},
		{cfg.Jobs.TeamCleanupSpec, worker.NewTeamCleanupJob(store.Teams, logger)},
	}
	for _, j := range jobs {
		if err := scheduler.Add(j.spec, j.job); err != nil {
			logger.Fatal("failed to schedule job", zap.Error(err))
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(panelAuth),
		Queue:          handlers.NewQueueHandler(queueService),
		RPC:            handlers.NewRPCHandler(rpcService),
		Onboarding:     handlers.NewOnboardingHandler(onboardingService),
		Staff:          handlers.NewStaffHandler(adminService),
		AuthMiddleware: auth.NewAuthMiddleware(panelAuth.Tokens(), store.Staff),
		Permissions:    authz,
		Onboard:        store.Users,
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("arcadia started", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))

	waitForShutdown(logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if err := bot.Close(); err != nil {
		logger.Warn("discord close", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
