package api

import (
	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/handlers"
)

func registerAccountRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler, notificationHandler *handlers.NotificationHandler) {
	group.GET("/me", authHandler.Me)

	notifications := group.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}
}

func registerHouseholdRoutes(group *gin.RouterGroup, householdHandler *handlers.HouseholdHandler, inviteHandler *handlers.InviteHandler, paymentHandler *handlers.PaymentHandler) {
	households := group.Group("/households")
	{
		households.POST("", householdHandler.Create)
		households.GET("", householdHandler.List)
		households.GET("/:id/members", householdHandler.Members)
		households.DELETE("/:id/members/:userId", householdHandler.RemoveMember)

		households.POST("/:id/invites", inviteHandler.Create)
		households.GET("/:id/invites", inviteHandler.List)

		households.POST("/:id/payments", paymentHandler.CreateBatch)
		households.GET("/:id/payments", paymentHandler.ListForHousehold)
	}
}

func registerPaymentRoutes(group *gin.RouterGroup, paymentHandler *handlers.PaymentHandler, inviteHandler *handlers.InviteHandler) {
	group.POST("/invites/redeem", inviteHandler.Redeem)
	group.DELETE("/invites/:id", inviteHandler.Cancel)

	payments := group.Group("/payments")
	{
		payments.GET("/mine", paymentHandler.ListMine)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/checkout", paymentHandler.BeginCheckout)
	}
}
