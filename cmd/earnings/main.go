package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/richxcame/tartanilla-earnings/internal/audit"
	"github.com/richxcame/tartanilla-earnings/internal/breakeven"
	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/internal/notifications"
	"github.com/richxcame/tartanilla-earnings/internal/payouts"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/internal/scheduler"
	"github.com/richxcame/tartanilla-earnings/internal/settings"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/config"
	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/richxcame/tartanilla-earnings/pkg/health"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/richxcame/tartanilla-earnings/pkg/middleware"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	redisclient "github.com/richxcame/tartanilla-earnings/pkg/redis"
	"github.com/richxcame/tartanilla-earnings/pkg/resilience"
)

const (
	serviceName = "earnings-service"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Amounts go out as JSON numbers, matching what the dashboard already parses.
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info("Starting earnings service",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var restBreaker *resilience.CircuitBreaker
	if cfg.Resilience.CircuitBreaker.Enabled {
		breakerCfg := cfg.Resilience.CircuitBreaker.SettingsFor("postgrest")
		restBreaker = resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "postgrest",
			Interval:         time.Duration(breakerCfg.IntervalSeconds) * time.Second,
			Timeout:          time.Duration(breakerCfg.TimeoutSeconds) * time.Second,
			FailureThreshold: uint32(breakerCfg.FailureThreshold),
			SuccessThreshold: uint32(breakerCfg.SuccessThreshold),
			IsFailure:        postgrest.IsUpstreamFailure,
		})
		logger.Info("Circuit breaker configured for data API",
			zap.Int("failure_threshold", breakerCfg.FailureThreshold),
			zap.Int("timeout_seconds", breakerCfg.TimeoutSeconds),
		)
	}

	rest := postgrest.New(postgrest.Config{
		BaseURL: cfg.Supabase.URL,
		APIKey:  cfg.Supabase.ServiceKey,
		Timeout: cfg.Supabase.Timeout(),
	}, postgrest.WithRetry(resilience.DefaultRetryConfig()), postgrest.WithBreaker(restBreaker))

	checker := health.NewDeepChecker(health.DeepCheckerConfig{
		Version:  version,
		Timeout:  3 * time.Second,
		CacheTTL: 10 * time.Second,
	})
	checker.AddDependency("postgrest", rest, true)
	if restBreaker != nil {
		checker.AddCircuitBreaker("postgrest", restBreaker)
	}

	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, percentage cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("Failed to close redis client", zap.Error(err))
				}
			}()
			checker.AddDependency("redis", redisClient, false)
		}
	}

	var bus *eventbus.Bus
	if cfg.NATS.Enabled {
		bus, err = eventbus.New(eventbus.Config{
			URL:        cfg.NATS.URL,
			Name:       serviceName,
			StreamName: cfg.NATS.StreamName,
		})
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", zap.Error(err))
			bus = nil
		} else {
			defer bus.Close()
			checker.AddDependency("nats", health.ContextFree(bus.Ping), false)
		}
	}
	var publisher eventbus.Publisher
	if bus != nil {
		publisher = bus
	}

	// Organization percentage
	var percentCache redisclient.ClientInterface
	if redisClient != nil {
		percentCache = redisClient
	}
	percentStore := settings.NewStore(
		settings.NewRepository(rest),
		percentCache,
		cfg.Earnings.DefaultOrganizationPct,
		cfg.Earnings.PercentagePollInterval,
		logger.Named("settings"),
	)
	if err := percentStore.Refresh(rootCtx); err != nil {
		logger.Warn("Initial organization percentage load failed, using fallback",
			zap.String("percent", percentStore.Percent().String()),
			zap.Error(err))
	}
	go percentStore.Run(rootCtx)
	defer percentStore.Stop()

	policy := earnings.NewStatusPolicy(cfg.Earnings.IncludeStatuses, cfg.Earnings.ExcludeStatuses)
	resolver := periods.NewResolver(
		periods.ResolveLocation(cfg.Breakeven.BucketTZ),
		cfg.Breakeven.DayCutoffHour,
		periods.ParseWeekMode(cfg.Breakeven.WeekMode),
	)
	splitter := earnings.NewSplitter(percentStore)
	earningsRepo := earnings.NewRepository(rest)
	auditLog := audit.NewLog(rest, logger.Named("audit"))

	// Notifications
	notificationService := notifications.NewService(notifications.NewRepository(rest), publisher)
	dispatcher := notifications.NewDispatcher(notifications.DispatcherConfig{
		Workers:   cfg.Notifications.Workers,
		QueueSize: cfg.Notifications.QueueSize,
	}, logger.Named("notifications"))
	dispatcher.Start()

	if bus != nil {
		if err := notifications.NewEventHandler(notificationService).RegisterSubscriptions(rootCtx, bus); err != nil {
			logger.Warn("Failed to subscribe to payout events", zap.Error(err))
		}
	}

	// Services
	earningsService := earnings.NewService(earningsRepo, splitter, policy, resolver)
	payoutService := payouts.NewService(payouts.NewRepository(rest), splitter).WithPublisher(publisher)

	historyRepo := breakeven.NewRepository(rest)
	shares := breakeven.Shares{
		Standard: cfg.Earnings.ShareBookingPct,
		Custom:   cfg.Earnings.ShareCustomPct,
	}
	breakevenService := breakeven.NewService(
		earningsRepo,
		historyRepo,
		resolver,
		periods.ResolveLocation(cfg.Breakeven.DisplayTZ),
		policy,
		shares,
	).WithNotifications(breakeven.NewNotifier(historyRepo, notificationService), dispatcher)

	var snapshotWorker *scheduler.Worker
	if cfg.Breakeven.SnapshotInterval > 0 {
		snapshotWorker = scheduler.NewWorker(breakevenService.Snapshotter(), cfg.Breakeven.SnapshotInterval, logger.Named("scheduler"))
		go snapshotWorker.Start(rootCtx)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.Origins()))
	router.Use(middleware.Metrics(serviceName))
	// Snapshot runs walk every driver and are bounded by the scheduler instead.
	router.Use(middleware.RequestTimeout(cfg.Server.RequestDeadline(), "/api/breakeven/snapshot"))

	router.GET("/healthz", checker.GinHandler())
	router.GET("/health/live", common.LivenessProbe(serviceName, version))
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, checker.Checks()))
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"version": version,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	earnings.NewHandler(earningsService).RegisterRoutes(router)
	earningsGroup := router.Group("/api/earnings")
	payouts.NewHandler(payoutService, auditLog).RegisterRoutes(earningsGroup)
	settings.NewHandler(percentStore, payoutService, auditLog).RegisterRoutes(earningsGroup)
	breakeven.NewHandler(breakevenService, auditLog, cfg.Breakeven.CronSecret).RegisterRoutes(router)
	notifications.NewHandler(dispatcher).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutting down server...")

	if snapshotWorker != nil {
		snapshotWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("Notification jobs still running at shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
