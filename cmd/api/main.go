package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/unidesk/request-service/internal/api/http"
	"github.com/unidesk/request-service/internal/api/http/handlers"
	"github.com/unidesk/request-service/internal/auth"
	"github.com/unidesk/request-service/internal/config"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/observability"
	"github.com/unidesk/request-service/internal/persistence"
	"github.com/unidesk/request-service/internal/repository"
	"github.com/unidesk/request-service/internal/service"
	"github.com/unidesk/request-service/internal/sla"
	"github.com/unidesk/request-service/internal/worker"
)

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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	ackRepo := repository.NewAcknowledgmentRepository(pool)
	actionRepo := repository.NewActionRepository(pool)
	penaltyRepo := repository.NewPenaltyRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	loginHistoryRepo := repository.NewLoginHistoryRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	reportRepo := repository.NewReportRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	slaCfg := sla.Config{
		NormalHours:   cfg.SLA.NormalHours,
		UrgentHours:   cfg.SLA.UrgentHours,
		CriticalHours: cfg.SLA.CriticalHours,
	}

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:          userRepo,
		LoginHistoryRepo:  loginHistoryRepo,
		PasswordResetRepo: resetRepo,
		Logger:            logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		ActionRepo:  actionRepo,
		PenaltyRepo: penaltyRepo,
		UserRepo:    userRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	}, slaCfg, cfg.SLA.CloseNotesMinLength)
	ackService := service.NewAcknowledgmentService(ticketRepo, ackRepo, actionRepo, dispatcher, logger)
	sweepService := service.NewSweepService(ticketRepo, actionRepo, penaltyRepo, userRepo, dispatcher, metrics, logger)
	notificationService := service.NewNotificationService(
		notificationRepo, ticketRepo, userRepo, redis.Client, logger, cfg.Notification.EmailFrom)
	notificationService.Register(dispatcher)
	reportService := service.NewReportService(
		reportRepo, penaltyRepo, ticketRepo, userRepo, notificationRepo, logger).
		WithCache(redis.Client)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	scheduler := worker.NewScheduler(sweepService, reportService, cfg.SLA, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, ackService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Reports:        handlers.NewReportsHandler(reportService),
		Departments:    handlers.NewDepartmentsHandler(departmentRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
