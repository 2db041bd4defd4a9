package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"checkin-keeper/middleware"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

func SetupExportRoutes(router *gin.Engine, exporter *services.ExportService, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/export")
	group.Use(authMiddleware.RequireAuth())

	group.GET("", handleExport(exporter))
}

func handleExport(exporter *services.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
		if err != nil || days < 1 || days > 365 {
			days = 30
		}
		stamp := time.Now().Format("2006-01-02")

		switch c.DefaultQuery("format", "json") {
		case "json":
			data, err := exporter.ExportJSON(c.Request.Context(), days)
			if err != nil {
				utils.RespondWithDomainError(c, err)
				return
			}
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=accounts-%s.json", stamp))
			c.Data(http.StatusOK, "application/json", data)
		case "xlsx":
			data, err := exporter.ExportExcel(c.Request.Context(), days)
			if err != nil {
				utils.RespondWithDomainError(c, err)
				return
			}
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=accounts-%s.xlsx", stamp))
			c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		default:
			utils.RespondWithBadRequest(c, "format must be json or xlsx", nil)
		}
	}
}
