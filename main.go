package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"companion-chat/internal/activity"
	"companion-chat/internal/ai"
	"companion-chat/internal/chat"
	"companion-chat/internal/config"
	"companion-chat/internal/db"
	"companion-chat/internal/handlers"
	"companion-chat/internal/inactivity"
	"companion-chat/internal/logging"
	"companion-chat/internal/middleware"
	"companion-chat/internal/models"
	"companion-chat/internal/notification"
	"companion-chat/internal/observability"
	"companion-chat/internal/push"
	"companion-chat/internal/rabbitmq"
	"companion-chat/internal/registry"
	"companion-chat/internal/repositories"
	"companion-chat/internal/repositories/memory"
	"companion-chat/internal/scheduler"
	"companion-chat/internal/telemetry"
	"companion-chat/internal/ws"
)

type stores struct {
	chats         repositories.ChatRepository
	messages      repositories.MessageRepository
	activity      repositories.ActivityRepository
	notifications repositories.NotificationRepository
	devices       repositories.DeviceRepository
	personas      repositories.PersonaSeeder
	close         func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.Tracing.Endpoint, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() { _ = st.close() }()
	seeded, err := st.personas.SeedPersonas(ctx, models.DefaultPersonas())
	if err != nil {
		logger.Fatal("failed to seed personas", zap.Error(err))
	}
	logger.Info("personas seeded", zap.Int("added", seeded))

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer func() { _ = publisher.Close() }()
	events := observability.NewEvents(publisher)

	providers, err := registry.New[ai.Provider](cfg.AI.Priority,
		ai.NewOpenAIProvider("openai", cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.OpenAIModel))
	if err != nil {
		logger.Fatal("failed to build ai provider registry", zap.Error(err))
	}
	catalog, err := ai.LoadCatalog(cfg.AI.FallbackCatalogPath)
	if err != nil {
		logger.Fatal("failed to load fallback catalog", zap.Error(err))
	}
	responder := ai.NewResponder(providers, catalog, cfg.AI.Timeout, logger)

	gateways, err := registry.New[push.Gateway](cfg.Push.Priority,
		push.NewAMQPGateway(publisher, cfg.AMQP.PushKeyPrefix),
		push.NewLogGateway(logger))
	if err != nil {
		logger.Fatal("failed to build push gateway registry", zap.Error(err))
	}

	hub := ws.NewHub(events, logger)
	tracker := activity.NewTracker(st.activity, st.notifications, logger)
	chats := chat.NewDispatcher(st.chats, st.messages, tracker, responder, hub, events, chat.Options{
		ContextWindow:    cfg.Chat.ContextWindow,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}, logger)
	detector := inactivity.NewDetector(tracker, st.chats, st.messages, st.notifications, responder, inactivity.Options{
		IdleThreshold: cfg.Inactivity.IdleThreshold,
		ScanLimit:     cfg.Inactivity.ScanLimit,
		ContextWindow: cfg.Chat.ContextWindow,
	}, logger)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditKey, cfg.ServiceName, cfg.Environment, logger)
	n := cfg.Notification
	notifications := notification.NewDispatcher(st.notifications, st.devices, gateways, tracker, audit, notification.Options{
		BatchSize:             n.BatchSize,
		Concurrency:           n.Concurrency,
		MaxRetries:            n.MaxRetries,
		RetryBaseDelay:        n.RetryBaseDelay,
		RetryMaxDelay:         n.RetryMaxDelay,
		PushTimeout:           cfg.Push.Timeout,
		RetryableBudget:       n.RetryableBudget,
		NotificationRetention: n.NotificationRetention,
		ActivityRetention:     n.ActivityRetention,
	}, logger)

	sched := scheduler.New(logger,
		scheduler.Job{Name: "inactivity_scan", Interval: cfg.Inactivity.ScanInterval, Run: func(ctx context.Context) error {
			_, err := detector.Scan(ctx)
			return err
		}},
		scheduler.Job{Name: "notification_delivery", Interval: n.DeliveryInterval, Run: func(ctx context.Context) error {
			_, err := notifications.ProcessPending(ctx, notifications.BatchSize())
			return err
		}},
		scheduler.Job{Name: "cleanup", Interval: n.CleanupInterval, Run: func(ctx context.Context) error {
			_, err := notifications.Cleanup(ctx)
			return err
		}},
	)
	sched.Start(ctx)

	chatHandler := handlers.NewChatHandler(chats)
	notificationHandler := handlers.NewNotificationHandler(notifications, st.devices)
	chatWS := ws.NewChatWebSocketHandler(hub, chats, logger)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	authed := router.Group("/", middleware.UserIdentity())
	authed.GET("/chats", chatHandler.ListChats)
	authed.POST("/chats", chatHandler.StartChat)
	authed.DELETE("/chats/:chat_id", chatHandler.CloseChat)
	authed.GET("/chats/:chat_id/messages", chatHandler.GetChatMessages)
	authed.POST("/chats/:chat_id/messages", chatHandler.PostChatMessage)
	authed.POST("/chats/:chat_id/read", chatHandler.MarkRead)
	authed.POST("/chats/:chat_id/typing", chatHandler.Typing)
	authed.GET("/notifications", notificationHandler.ListNotifications)
	authed.POST("/notifications/:id/read", notificationHandler.MarkNotificationRead)
	authed.POST("/devices", notificationHandler.RegisterDevice)
	authed.GET("/ws/chats/:chat_id", chatWS.Handle)

	router.GET("/admin/notifications/retryable", notificationHandler.ListRetryable)
	handlers.RegisterDebugRoutes(authed, audit, notifications, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, error) {
	if cfg.StorageDriver == "memory" {
		store := memory.New()
		logger.Info("using in-memory storage")
		return stores{
			chats:         store,
			messages:      store,
			activity:      store,
			notifications: store,
			devices:       store,
			personas:      store,
			close:         func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return stores{}, err
	}
	chats := repositories.NewChatRepo(database)
	return stores{
		chats:         chats,
		messages:      repositories.NewMessageRepo(database),
		activity:      repositories.NewActivityRepo(database),
		notifications: repositories.NewNotificationRepo(database),
		devices:       repositories.NewDeviceRepo(database),
		personas:      chats,
		close:         database.Close,
	}, nil
}
