package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"checkin-keeper/middleware"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

func SetupAuditRoutes(router *gin.Engine, auditor *models.AuditLogger, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/audit")
	group.Use(authMiddleware.RequireAuth())

	group.GET("", handleQueryAudit(auditor))
	group.GET("/verify", handleVerifyAudit(auditor))
}

func handleQueryAudit(auditor *models.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		if err != nil || pageSize < 1 || pageSize > 500 {
			pageSize = 50
		}

		filter := bson.M{}
		if action := c.Query("action"); action != "" {
			filter["action"] = action
		}
		if resource := c.Query("resource"); resource != "" {
			filter["resource"] = resource
		}

		events, total, err := auditor.QueryAuditLogs(filter, page, pageSize)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to query audit log", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"events":    events,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

func handleVerifyAudit(auditor *models.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		valid, err := auditor.VerifyChain()
		if err != nil {
			utils.RespondWithInternalError(c, "failed to verify audit chain", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"chain_valid": valid})
	}
}
