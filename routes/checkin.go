package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"checkin-keeper/internal/queue"
	"checkin-keeper/internal/repository"
	"checkin-keeper/middleware"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

func SetupCheckInRoutes(router *gin.Engine, executor *services.CheckInExecutor, jobs repository.CheckInJobRepository, asynqClient *asynq.Client, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/checkin")
	group.Use(authMiddleware.RequireAuth())

	group.POST("/:accountId", handleExecuteCheckIn(executor))
	group.POST("/:accountId/enqueue", handleEnqueueCheckIn(asynqClient))
	group.GET("/:accountId/balance", handleFetchBalance(executor))
	group.POST("/batch", handleExecuteBatch(executor))
	group.POST("/batch/enqueue", handleEnqueueBatch(asynqClient))
	group.POST("/stop", handleStopBatch(executor))
	group.GET("/status", handleBatchStatus(executor))
	group.GET("/jobs/:accountId", handleListJobs(jobs))
}

// batchRequest optionally narrows a batch run to specific accounts.
type batchRequest struct {
	AccountIDs []string `json:"account_ids"`
}

func readBatchRequest(c *gin.Context) (batchRequest, bool) {
	var req batchRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithDomainError(c, utils.WrapDomainError(utils.KindValidation, "invalid batch request body", err))
		return req, false
	}
	return req, true
}

func handleExecuteCheckIn(executor *services.CheckInExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := executor.Execute(c.Request.Context(), c.Param("accountId"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleEnqueueCheckIn(client *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_disabled", "the task queue is not configured", nil)
			return
		}
		task, err := queue.NewCheckInTask(c.Param("accountId"), "manual")
		if err != nil {
			utils.RespondWithInternalError(c, "failed to build check-in task", nil)
			return
		}
		info, err := client.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to enqueue check-in task", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
	}
}

func handleFetchBalance(executor *services.CheckInExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		forceRefresh := c.Query("refresh") == "true"
		balance, err := executor.FetchBalance(c.Request.Context(), c.Param("accountId"), forceRefresh)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"current_balance": balance.Quota,
			"total_consumed":  balance.Used,
			"total_income":    balance.Remaining,
		})
	}
}

func handleExecuteBatch(executor *services.CheckInExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := readBatchRequest(c)
		if !ok {
			return
		}
		summary, err := executor.ExecuteBatch(c.Request.Context(), req.AccountIDs)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func handleEnqueueBatch(client *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_disabled", "the task queue is not configured", nil)
			return
		}
		req, ok := readBatchRequest(c)
		if !ok {
			return
		}
		task, err := queue.NewBatchCheckInTask("manual", req.AccountIDs)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to build batch task", nil)
			return
		}
		info, err := client.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to enqueue batch task", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
	}
}

func handleStopBatch(executor *services.CheckInExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		executor.RequestStop()
		c.JSON(http.StatusOK, gin.H{"message": "stop requested"})
	}
}

func handleBatchStatus(executor *services.CheckInExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"batch_running": executor.BatchRunning()})
	}
}

func handleListJobs(jobs repository.CheckInJobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 200 {
			limit = 20
		}
		list, err := jobs.FindByAccountID(c.Request.Context(), c.Param("accountId"), limit)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": list, "total": len(list)})
	}
}
