package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigmarket-backend/internal/config"
	"github.com/ignatzorin/gigmarket-backend/internal/http/handlers"
	"github.com/ignatzorin/gigmarket-backend/internal/http/middleware"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	log *logrus.Logger,
	tokenManager *service.TokenManager,
	paymentHandler *handlers.PaymentHandler,
	orderHandler *handlers.OrderHandler,
	disputeHandler *handlers.DisputeHandler,
	contractHandler *handlers.ContractHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler(log))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Вебхук провайдера: без авторизации, подлинность проверяется подписью.
	api.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.POST("/payments/create-intent", paymentHandler.CreateIntent)
		protected.POST("/payments/confirm", paymentHandler.ConfirmPayment)
		protected.POST("/payments/release-escrow", paymentHandler.ReleaseEscrow)

		protected.GET("/orders", orderHandler.ListOrders)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.GetOrder)
		protected.GET("/orders/:id/history", middleware.UUIDValidator("id"), orderHandler.GetHistory)
		protected.GET("/orders/:id/transactions", middleware.UUIDValidator("id"), orderHandler.GetTransactions)
		protected.POST("/orders/:id/requirements", middleware.UUIDValidator("id"), orderHandler.AttachRequirements)
		protected.POST("/orders/:id/start", middleware.UUIDValidator("id"), orderHandler.StartDelivery)
		protected.POST("/orders/:id/deliver", middleware.UUIDValidator("id"), orderHandler.Deliver)
		protected.POST("/orders/:id/accept", middleware.UUIDValidator("id"), orderHandler.AcceptDelivery)
		protected.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), orderHandler.Cancel)

		protected.GET("/orders/:id/contract", middleware.UUIDValidator("id"), contractHandler.GetContract)
		protected.GET("/orders/:id/contract/document", middleware.UUIDValidator("id"), contractHandler.GetDocument)
		protected.POST("/orders/:id/contract/agree", middleware.UUIDValidator("id"), contractHandler.Agree)

		protected.POST("/disputes", disputeHandler.CreateDispute)
		protected.GET("/disputes", disputeHandler.ListDisputes)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
	}

	// Решение по спору: привилегированная операция на общем пути споров.
	api.PUT("/disputes/:id/resolve",
		middleware.AuthMiddleware(tokenManager), middleware.RequireAdmin(),
		middleware.UUIDValidator("id"), disputeHandler.Resolve)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireAdmin())
	{
		admin.GET("/disputes", disputeHandler.ListActive)
		admin.POST("/disputes/:id/review", middleware.UUIDValidator("id"), disputeHandler.TakeUnderReview)
	}

	return r
}
