package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/yoye-booking/internal/service"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

// QueueInspector is implemented by both the redis and the in-memory queue.
type QueueInspector interface {
	GetQueueStats(ctx context.Context) (*queue.QueueStats, error)
	GetFailedTasks(ctx context.Context, limit int) ([]*queue.FailedTask, error)
	RequeueFailedTask(ctx context.Context, taskID string) error
}

type BookingHandler struct {
	trackingService service.TrackingService
	queue           QueueInspector
}

// NewBookingHandler: q may be nil when the queue is disabled.
func NewBookingHandler(trackingService service.TrackingService, q QueueInspector) *BookingHandler {
	return &BookingHandler{trackingService: trackingService, queue: q}
}

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// GetTracking отдаёт страницу таблицы отслеживания
func (h *BookingHandler) GetTracking(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}

	result, err := h.trackingService.List(c.Request.Context(), c.Query("q"), page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	detail, err := h.trackingService.Detail(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// UpdateBooking сохраняет форму после подтверждения брони
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	var req service.UpdateDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	detail, err := h.trackingService.UpdateDetail(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Booking updated successfully",
		Data:    detail,
	})
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	booking, err := h.trackingService.UpdateStatus(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Booking status updated",
		Data:    booking,
	})
}

func (h *BookingHandler) GetStats(c *gin.Context) {
	stats, err := h.trackingService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// SendReminders запускает рассылку напоминаний вне расписания
func (h *BookingHandler) SendReminders(c *gin.Context) {
	sent, err := h.trackingService.RemindDuePayments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func (h *BookingHandler) queueDisabled(c *gin.Context) bool {
	if h.queue == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue is disabled"})
		return true
	}
	return false
}

func (h *BookingHandler) GetQueueStats(c *gin.Context) {
	if h.queueDisabled(c) {
		return
	}

	stats, err := h.queue.GetQueueStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *BookingHandler) GetFailedTasks(c *gin.Context) {
	if h.queueDisabled(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	tasks, err := h.queue.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Failed tasks retrieved successfully",
		Data:    tasks,
		Meta:    map[string]interface{}{"limit": limit, "count": len(tasks)},
	})
}

func (h *BookingHandler) RequeueFailedTask(c *gin.Context) {
	if h.queueDisabled(c) {
		return
	}

	if err := h.queue.RequeueFailedTask(c.Request.Context(), c.Param("id")); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Task requeued"})
}
