package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/gigmarket-backend/internal/config"
	"github.com/ignatzorin/gigmarket-backend/internal/db"
	"github.com/ignatzorin/gigmarket-backend/internal/events"
	"github.com/ignatzorin/gigmarket-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/gigmarket-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/gigmarket-backend/internal/http/router"
	"github.com/ignatzorin/gigmarket-backend/internal/logger"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
	"github.com/ignatzorin/gigmarket-backend/internal/storage"
	"github.com/ignatzorin/gigmarket-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
	}
	appLog := logger.New(logLevel, cfg.Env)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательная инфраструктура.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	recovery := goroutine.NewRecoveryHandler(appLog)
	audit := service.NewLogAuditSink(appLog)

	contractStorage, err := storage.NewContractStorage(cfg.ContractStoragePath)
	if err != nil {
		log.Fatalf("main: не удалось подготовить хранилище договоров: %v", err)
	}

	provider := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	// Шина событий необязательна: без AMQP_URL события просто не публикуются.
	var publisher service.EventPublisher
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Fatalf("main: ошибка подключения к шине событий: %v", err)
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	// Вебсокеты.
	hub := ws.NewHub(appLog)
	go hub.Run()

	// Репозитории.
	orderRepo := repository.NewOrderRepository(dbConn)
	listingRepo := repository.NewListingRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	contractRepo := repository.NewContractRepository(dbConn)

	// Сервисы.
	contractService := service.NewContractService(contractRepo, contractStorage, recovery, appLog)
	escrowService := service.NewEscrowService(
		orderRepo, listingRepo, provider, contractService, publisher, hub, audit,
		cfg.PlatformFeePercent, cfg.Currency, cfg.ProviderTimeout,
	)
	orderService := service.NewOrderService(orderRepo, escrowService, provider, hub, audit, cfg.ProviderTimeout)
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, escrowService, hub, audit)
	webhookService := service.NewWebhookService(provider, escrowService, audit)

	// HTTP хэндлеры.
	paymentHandler := httpHandlers.NewPaymentHandler(escrowService, orderService)
	orderHandler := httpHandlers.NewOrderHandler(orderService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	contractHandler := httpHandlers.NewContractHandler(contractService, orderService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService, appLog)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(cfg, appLog, tokenManager,
		paymentHandler, orderHandler, disputeHandler, contractHandler,
		webhookHandler, wsHandler, healthHandler)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	appLog.Infof("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
