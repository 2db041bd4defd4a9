package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-keeper/internal/probe"
	"checkin-keeper/internal/repository"
	"checkin-keeper/middleware"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

type providerRequest struct {
	Name            string `json:"name" binding:"required"`
	Domain          string `json:"domain" binding:"required"`
	LoginPath       string `json:"login_path" binding:"required"`
	SignInPath      string `json:"sign_in_path"`
	UserInfoPath    string `json:"user_info_path" binding:"required"`
	TokenAPIPath    string `json:"token_api_path"`
	ModelsPath      string `json:"models_path"`
	APIUserKey      string `json:"api_user_key"`
	BypassMethod    string `json:"bypass_method"`
	SupportsCheckIn bool   `json:"supports_check_in"`
	CheckInBugged   bool   `json:"check_in_bugged"`
}

func SetupProviderRoutes(router *gin.Engine, providers repository.ProviderRepository, prober *probe.Prober, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/providers")
	group.Use(authMiddleware.RequireAuth())

	group.POST("", handleCreateProvider(providers))
	group.GET("", handleListProviders(providers))
	group.GET("/:id", handleGetProvider(providers))
	group.PUT("/:id", handleUpdateProvider(providers))
	group.DELETE("/:id", handleDeleteProvider(providers))
	group.GET("/:id/probe", handleProbeProvider(providers, prober))
}

func handleCreateProvider(providers repository.ProviderRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req providerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "name, domain, login_path and user_info_path are required", gin.H{"error": err.Error()})
			return
		}

		provider := models.NewProvider(
			req.Name, req.Domain,
			req.LoginPath, req.SignInPath, req.UserInfoPath, req.TokenAPIPath, req.ModelsPath,
			req.APIUserKey, req.BypassMethod,
			req.SupportsCheckIn, req.CheckInBugged,
		)
		if err := providers.Save(c.Request.Context(), provider); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, provider)
	}
}

func handleListProviders(providers repository.ProviderRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := providers.FindAll(c.Request.Context())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": all, "total": len(all)})
	}
}

func handleGetProvider(providers repository.ProviderRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider, err := providers.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, provider)
	}
}

func handleUpdateProvider(providers repository.ProviderRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		existing, err := providers.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if existing.IsBuiltin {
			utils.RespondWithBadRequest(c, "builtin providers cannot be modified", nil)
			return
		}

		var req providerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid provider payload", gin.H{"error": err.Error()})
			return
		}

		updated := models.NewProvider(
			req.Name, req.Domain,
			req.LoginPath, req.SignInPath, req.UserInfoPath, req.TokenAPIPath, req.ModelsPath,
			req.APIUserKey, req.BypassMethod,
			req.SupportsCheckIn, req.CheckInBugged,
		)
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt

		if err := providers.Save(c.Request.Context(), updated); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleDeleteProvider(providers repository.ProviderRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		existing, err := providers.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if existing.IsBuiltin {
			utils.RespondWithBadRequest(c, "builtin providers cannot be deleted", nil)
			return
		}

		if err := providers.Delete(c.Request.Context(), c.Param("id")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "provider deleted"})
	}
}

func handleProbeProvider(providers repository.ProviderRepository, prober *probe.Prober) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider, err := providers.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		// The probe does its own timeout handling; detach from the request
		// context so slow providers still produce a classified result.
		result, err := prober.ProbeLoginPage(provider)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
