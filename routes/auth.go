package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"checkin-keeper/internal/auth"
	"checkin-keeper/internal/config"
	"checkin-keeper/utils"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetupAuthRoutes wires the login endpoints. This is a single-operator
// service: the admin credentials come from configuration, hashed once at
// startup so the plaintext never sticks around in memory longer than needed.
func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client) {
	passwordHash, err := utils.HashPassword(cfg.AdminPassword, bcrypt.DefaultCost)
	if err != nil {
		panic("failed to hash admin password: " + err.Error())
	}

	authGroup := router.Group("/api/auth")

	authGroup.POST("/login", handleLogin(cfg, passwordHash, rdb))
	authGroup.POST("/logout", handleLogout(rdb))
	authGroup.POST("/refresh", handleRefresh(cfg, rdb))
}

func handleLogin(cfg *config.Config, passwordHash string, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "username and password are required", nil)
			return
		}

		if req.Username != cfg.AdminUsername || !utils.CheckPassword(req.Password, passwordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		tokenPair, err := auth.IssueTokenPair(req.Username, "admin", rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, tokenPair)
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokenPair.AccessToken,
			"expires_at":   tokenPair.AccessExp,
		})
	}
}

func handleLogout(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie("access_token"); err == nil && token != "" {
			if claims, err := auth.ValidateAccessToken(token, rdb); err == nil {
				_ = auth.RevokeToken(claims.ID, false, rdb)
			}
		}
		if token, err := c.Cookie("refresh_token"); err == nil && token != "" {
			if claims, err := auth.ValidateRefreshToken(token, rdb); err == nil {
				_ = auth.RevokeToken(claims.ID, true, rdb)
			}
		}

		c.SetCookie("access_token", "", -1, "/", "", false, true)
		c.SetCookie("refresh_token", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

func handleRefresh(cfg *config.Config, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		refreshToken, err := c.Cookie("refresh_token")
		if err != nil || refreshToken == "" {
			utils.RespondWithUnauthorized(c, "Refresh token is required")
			return
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Refresh token is invalid or expired")
			return
		}

		// Rotate: revoke the old refresh token before issuing a new pair.
		_ = auth.RevokeToken(claims.ID, true, rdb)

		tokenPair, err := auth.IssueTokenPair(claims.UserID, claims.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, tokenPair)
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokenPair.AccessToken,
			"expires_at":   tokenPair.AccessExp,
		})
	}
}

func setAuthCookies(c *gin.Context, cfg *config.Config, pair *auth.TokenPair) {
	secure := cfg.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", pair.AccessToken, int(1*time.Hour.Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", pair.RefreshToken, int(7*24*time.Hour.Seconds()), "/", "", secure, true)
}
