package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"checkin-keeper/middleware"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

func SetupTokenRoutes(router *gin.Engine, tokens *services.TokenService, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/accounts/:id")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/tokens", handleListTokens(tokens))
	group.GET("/models", handleListModels(tokens))
}

func handleListTokens(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		refresh := c.Query("refresh") == "true"

		result, err := tokens.ListTokens(c.Request.Context(), c.Param("id"), page, refresh)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleListModels(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh := c.Query("refresh") == "true"

		models, err := tokens.ListModels(c.Request.Context(), c.Param("id"), refresh)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"models": models, "total": len(models)})
	}
}
