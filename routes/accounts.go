package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"checkin-keeper/internal/logger"
	"checkin-keeper/middleware"
	"checkin-keeper/models"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

type createAccountRequest struct {
	Name       string            `json:"name" binding:"required"`
	ProviderID string            `json:"provider_id" binding:"required"`
	Cookies    map[string]string `json:"cookies" binding:"required"`
	APIUser    string            `json:"api_user"`
}

type updateAccountRequest struct {
	Name    *string           `json:"name"`
	Cookies map[string]string `json:"cookies"`
	APIUser *string           `json:"api_user"`
}

type toggleAccountRequest struct {
	Enabled bool `json:"enabled"`
}

type autoCheckInRequest struct {
	Enabled bool `json:"enabled"`
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
}

// accountView is the API shape of an account. Cookie values are masked; the
// live values never leave the server through list/get endpoints.
type accountView struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	ProviderID         string             `json:"provider_id"`
	Cookies            map[string]string  `json:"cookies"`
	APIUser            string             `json:"api_user,omitempty"`
	Enabled            bool               `json:"enabled"`
	AutoCheckIn        models.AutoCheckIn `json:"auto_checkin"`
	LastCheckIn        *time.Time         `json:"last_check_in,omitempty"`
	CurrentBalance     *float64           `json:"current_balance,omitempty"`
	TotalConsumed      *float64           `json:"total_consumed,omitempty"`
	TotalIncome        *float64           `json:"total_income,omitempty"`
	LastBalanceCheckAt *time.Time         `json:"last_balance_check_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

func viewOf(account *models.Account) accountView {
	masked := make(map[string]string, len(account.Credentials.Cookies))
	for name, value := range account.Credentials.Cookies {
		masked[name] = logger.MaskSensitive(value)
	}
	return accountView{
		ID:                 account.ID,
		Name:               account.Name,
		ProviderID:         account.ProviderID,
		Cookies:            masked,
		APIUser:            account.Credentials.APIUser,
		Enabled:            account.Enabled,
		AutoCheckIn:        account.AutoCheckIn,
		LastCheckIn:        account.LastCheckIn,
		CurrentBalance:     account.CurrentBalance,
		TotalConsumed:      account.TotalConsumed,
		TotalIncome:        account.TotalIncome,
		LastBalanceCheckAt: account.LastBalanceCheckAt,
		CreatedAt:          account.CreatedAt,
	}
}

func SetupAccountRoutes(router *gin.Engine, accounts *services.AccountService, history *services.BalanceHistoryService, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/accounts")
	group.Use(authMiddleware.RequireAuth())

	group.POST("", handleCreateAccount(accounts))
	group.GET("", handleListAccounts(accounts))
	group.GET("/:id", handleGetAccount(accounts))
	group.PUT("/:id", handleUpdateAccount(accounts))
	group.DELETE("/:id", handleDeleteAccount(accounts))
	group.PATCH("/:id/toggle", handleToggleAccount(accounts))
	group.PUT("/:id/schedule", handleUpdateSchedule(accounts))
	group.GET("/:id/history", handleAccountHistory(history))
	group.GET("/:id/history/delta", handleAccountDelta(history))
}

func handleCreateAccount(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "name, provider_id and cookies are required", gin.H{"error": err.Error()})
			return
		}

		account, err := accounts.Create(c.Request.Context(), req.Name, req.ProviderID, req.Cookies, req.APIUser)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, viewOf(account))
	}
}

func handleListAccounts(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := accounts.List(c.Request.Context())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		views := make([]accountView, 0, len(all))
		for _, account := range all {
			views = append(views, viewOf(account))
		}
		c.JSON(http.StatusOK, gin.H{"accounts": views, "total": len(views)})
	}
}

func handleGetAccount(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := accounts.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(account))
	}
}

func handleUpdateAccount(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid update payload", gin.H{"error": err.Error()})
			return
		}

		account, err := accounts.Update(c.Request.Context(), c.Param("id"), services.UpdateRequest{
			Name:    req.Name,
			Cookies: req.Cookies,
			APIUser: req.APIUser,
		})
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(account))
	}
}

func handleDeleteAccount(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := accounts.Delete(c.Request.Context(), c.Param("id")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
	}
}

func handleToggleAccount(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "enabled flag is required", nil)
			return
		}

		account, err := accounts.Toggle(c.Request.Context(), c.Param("id"), req.Enabled)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(account))
	}
}

func handleUpdateSchedule(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req autoCheckInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid schedule payload", nil)
			return
		}

		account, err := accounts.UpdateAutoCheckIn(c.Request.Context(), c.Param("id"), req.Enabled, req.Hour, req.Minute)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(account))
	}
}

func handleAccountHistory(history *services.BalanceHistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

		records, err := history.Recent(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": records, "total": len(records)})
	}
}

func handleAccountDelta(history *services.BalanceHistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		delta, ok, err := history.DailyDelta(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"available": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"available": true, "delta": delta})
	}
}
