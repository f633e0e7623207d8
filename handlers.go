package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/models/reports"
	"github.com/svcops/spareparts_backend/utils"
	"github.com/svcops/spareparts_backend/workflow"
)

// respondError maps the workflow error taxonomy onto HTTP statuses. Stock
// and sequencing conflicts are 409 (caller state is stale, re-read and
// retry deliberately), contention is 503 (blind retry is fine), unknown
// record 404, everything else is treated as caller input trouble.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, workflow.ErrApprovalNotEligible),
		errors.Is(err, workflow.ErrApprovalAlreadyRecorded),
		errors.Is(err, workflow.ErrRequestFrozen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrContention):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, models.ErrLineItemMismatch):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func requireUser(c *gin.Context) bool {
	if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func createRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		var input models.NewSpareRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		request, err := models.CreateSpareRequest(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, request)
	}
}

func getRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		request, err := models.GetSpareRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	}
}

func listRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		afterId, _ := strconv.Atoi(c.Query("after_id"))

		var status *models.RequestStatus
		if raw := c.Query("status"); raw != "" {
			parsed, err := models.ParseRequestStatus(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status = &parsed
		}
		var kind *models.RequestKind
		if raw := c.Query("kind"); raw != "" {
			parsed, err := models.ParseRequestKind(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			kind = &parsed
		}

		requests, err := models.PaginateSpareRequests(c.Request.Context(), limit, afterId, status, kind)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests})
	}
}

func requestHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		db := config.GetDB()
		histories, err := models.GetRequestStatusHistory(db.WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": histories})
	}
}

func eligibilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		request, err := models.GetSpareRequest(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		db := config.GetDB()
		eval, err := workflow.EvaluateApproval(db.WithContext(ctx), request)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, eval)
	}
}

func submitApprovalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.SubmitApprovalInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.RequestId = id
		approval, err := workflow.SubmitApprovalDecision(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, approval)
	}
}

func fulfillRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := workflow.FulfillRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func recordReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.RecordReceiptInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.RequestId = id
		result, err := workflow.RecordReceipt(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func recordVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.RecordVerificationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.RequestId = id
		result, err := workflow.RecordVerification(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func cancelRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			Remarks string `json:"remarks"`
		}
		_ = c.ShouldBindJSON(&input)
		result, err := workflow.CancelRequest(c.Request.Context(), id, input.Remarks)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func locationFromQuery(c *gin.Context) (models.LocationRef, bool) {
	locType, err := models.ParseLocationType(c.Query("location_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.LocationRef{}, false
	}
	locId, err := strconv.Atoi(c.Query("location_id"))
	if err != nil || locId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return models.LocationRef{}, false
	}
	return models.LocationRef{Type: locType, Id: locId}, true
}

func inventorySnapshotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		spareId, err := strconv.Atoi(c.Query("spare_id"))
		if err != nil || spareId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spare_id"})
			return
		}
		loc, ok := locationFromQuery(c)
		if !ok {
			return
		}
		snapshot, err := models.GetInventorySnapshot(c.Request.Context(), spareId, loc)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func getMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		movement, err := models.GetStockMovement(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, movement)
	}
}

func listMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if reference := c.Query("reference"); reference != "" {
			movements, err := models.GetStockMovementsByReference(ctx, reference)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"movements": movements})
			return
		}
		if raw := c.Query("request_id"); raw != "" {
			requestId, err := strconv.Atoi(raw)
			if err != nil || requestId <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request_id"})
				return
			}
			movements, err := models.GetStockMovementsByRequest(ctx, requestId)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"movements": movements})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference or request_id is required"})
	}
}

func searchSparesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		spares, err := models.SearchSpareParts(c.Request.Context(), c.Query("query"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"spares": spares})
	}
}

func inventoryOnHandReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var loc *models.LocationRef
		if c.Query("location_type") != "" || c.Query("location_id") != "" {
			parsed, ok := locationFromQuery(c)
			if !ok {
				return
			}
			loc = &parsed
		}
		rows, err := reports.InventoryOnHand(c.Request.Context(), loc)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows})
	}
}

func mslBreachesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var loc *models.LocationRef
		if c.Query("location_type") != "" || c.Query("location_id") != "" {
			parsed, ok := locationFromQuery(c)
			if !ok {
				return
			}
			loc = &parsed
		}
		breaches, err := models.CheckMslBreaches(c.Request.Context(), loc)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"breaches": breaches})
	}
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		var input workflow.ReconcileInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.RequestKey == "" {
			input.RequestKey = c.GetHeader("Idempotency-Key")
		}
		result, err := workflow.ReconcileInventory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

// outboxReplayHandler re-queues a DEAD or FAILED outbox row for the
// dispatcher. Ops tooling; does not touch rows the dispatcher still owns.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireUser(c) {
			return
		}
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}

		db := config.GetDB()
		now := time.Now().UTC()
		result := db.WithContext(c.Request.Context()).
			Model(&models.OutboxEventRecord{}).
			Where("id = ? AND publish_status IN ?", req.RecordId,
				[]string{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed}).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusPending,
				"publish_attempts":   0,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			})
		if result.Error != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": result.Error.Error()})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no dead or failed outbox row with that id"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusPending,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
