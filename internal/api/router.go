package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/auth"
	"github.com/splithaus/splithaus/internal/handlers"
	"github.com/splithaus/splithaus/internal/middleware"
	"github.com/splithaus/splithaus/internal/services"
)

// Services bundles everything the router needs to expose the API.
type Services struct {
	DB            *gorm.DB
	JWT           *auth.JWTService
	Users         *services.UserService
	Households    *services.HouseholdService
	Invites       *services.InviteService
	Payments      *services.PaymentService
	Checkout      *services.CheckoutService
	Reconcile     *services.ReconcileService
	Notifications *services.NotificationService
}

// NewRouter assembles the HTTP API. Webhooks, health, and metrics are public;
// everything under /api requires a bearer token.
func NewRouter(deps Services) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT)
	householdHandler := handlers.NewHouseholdHandler(deps.Households, deps.Users)
	inviteHandler := handlers.NewInviteHandler(deps.Invites)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments, deps.Checkout)
	webhookHandler := handlers.NewWebhookHandler(deps.Reconcile)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	router.GET("/healthz", healthHandler.Live)
	router.GET("/readyz", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway callbacks authenticate with an HMAC signature, not a session.
	router.POST("/webhooks/gateway", webhookHandler.HandleGateway)

	public := router.Group("/api/auth")
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
	}

	authed := router.Group("/api", middleware.Auth(deps.JWT))
	registerAccountRoutes(authed, authHandler, notificationHandler)
	registerHouseholdRoutes(authed, householdHandler, inviteHandler, paymentHandler)
	registerPaymentRoutes(authed, paymentHandler, inviteHandler)

	return router
}
