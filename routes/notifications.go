package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-keeper/internal/repository"
	"checkin-keeper/middleware"
	"checkin-keeper/models"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

type channelRequest struct {
	Name    string            `json:"name" binding:"required"`
	Type    string            `json:"type" binding:"required"`
	URL     string            `json:"url" binding:"required"`
	Headers map[string]string `json:"headers"`
}

type toggleChannelRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func SetupNotificationRoutes(router *gin.Engine, channels repository.NotificationChannelRepository, notifier *services.NotificationService, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/notifications")
	group.Use(authMiddleware.RequireAuth())

	group.POST("/channels", handleCreateChannel(channels))
	group.GET("/channels", handleListChannels(channels))
	group.PUT("/channels/:id", handleUpdateChannel(channels))
	group.PATCH("/channels/:id/toggle", handleToggleChannel(channels))
	group.DELETE("/channels/:id", handleDeleteChannel(channels))
	group.POST("/channels/:id/test", handleTestChannel(notifier))
}

func handleCreateChannel(channels repository.NotificationChannelRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req channelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "name, type and url are required", gin.H{"error": err.Error()})
			return
		}
		if req.Type != "webhook" {
			utils.RespondWithBadRequest(c, "unsupported channel type", gin.H{"type": req.Type})
			return
		}

		channel := models.NewNotificationChannel(req.Name, req.Type, req.URL, req.Headers)
		if err := channels.Save(c.Request.Context(), channel); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, channel)
	}
}

func handleListChannels(channels repository.NotificationChannelRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := channels.FindAll(c.Request.Context())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": all, "total": len(all)})
	}
}

func handleUpdateChannel(channels repository.NotificationChannelRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		existing, err := channels.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		var req channelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid channel payload", gin.H{"error": err.Error()})
			return
		}

		existing.Name = req.Name
		existing.Type = req.Type
		existing.URL = req.URL
		existing.Headers = req.Headers

		if err := channels.Save(c.Request.Context(), existing); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	}
}

func handleToggleChannel(channels repository.NotificationChannelRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleChannelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "enabled is required", nil)
			return
		}

		existing, err := channels.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		existing.Enabled = *req.Enabled

		if err := channels.Save(c.Request.Context(), existing); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	}
}

func handleDeleteChannel(channels repository.NotificationChannelRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := channels.Delete(c.Request.Context(), c.Param("id")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "channel deleted"})
	}
}

func handleTestChannel(notifier *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := notifier.TestChannel(c.Request.Context(), c.Param("id")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "test notification delivered"})
	}
}
