package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"schedule-sync-go/internal/models"
	"schedule-sync-go/internal/repository"
	"schedule-sync-go/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	repo      *repository.Repository
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(repo *repository.Repository, s *scheduler.Scheduler) *Handlers {
	return &Handlers{repo: repo, scheduler: s}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Dashboard reads
		api.GET("/notifications/:student_id", h.GetNotifications)
		api.GET("/dashboard/:student_id", h.GetDashboard)

		// Weekly slots
		api.GET("/slots", h.GetSlots)
		api.POST("/slots", h.CreateSlot)

		// Run reports
		api.GET("/reports/latest", h.GetLatestReport)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.repo.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetNotifications returns a student's notifications, newest first
func (h *Handlers) GetNotifications(c *gin.Context) {
	studentID := c.Param("student_id")

	notifications, err := h.repo.ListNotifications(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch notifications",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]models.NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, models.NotificationResponse{
			NotificationID: n.NotificationID,
			Type:           n.Type,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"notifications": responses})
}

// GetDashboard returns a student's drives, reschedules and attendance
func (h *Handlers) GetDashboard(c *gin.Context) {
	studentID := c.Param("student_id")
	ctx := c.Request.Context()

	student, err := h.repo.GetStudent(ctx, studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch student",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Student not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	drives, err := h.repo.ListDrives(ctx, studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch drives",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	reschedules, err := h.repo.ListReschedulesForStudent(ctx, studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch rescheduled classes",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	attendance, err := h.repo.ListAttendance(ctx, studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch attendance",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, models.DashboardResponse{
		StudentID:   student.StudentID,
		Name:        student.Name,
		Drives:      drives,
		Reschedules: reschedules,
		Attendance:  attendance,
	})
}

// SlotRequest is the request body for creating a weekly slot
type SlotRequest struct {
	Day       string `json:"day" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

// GetSlots returns all predefined weekly slots
func (h *Handlers) GetSlots(c *gin.Context) {
	slots, err := h.repo.ListWeeklySlots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch slots",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// CreateSlot adds a predefined weekly slot
func (h *Handlers) CreateSlot(c *gin.Context) {
	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	slot := models.WeeklySlot{
		Day:       req.Day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if err := h.repo.CreateWeeklySlot(c.Request.Context(), &slot); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create slot",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, slot)
}

// GetLatestReport returns the most recent pipeline run report
func (h *Handlers) GetLatestReport(c *gin.Context) {
	report := h.scheduler.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "No pipeline run has completed yet",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// StartScheduler starts the periodic scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopScheduler stops the periodic scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// RunOnce triggers one pipeline run in the background
func (h *Handlers) RunOnce(c *gin.Context) {
	go func() {
		if err := h.scheduler.RunOnce(); err != nil {
			logrus.Errorf("Manual pipeline run failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// GetSchedulerStatus returns the scheduler state
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := gin.H{"running": h.scheduler.IsRunning()}
	if h.scheduler.IsRunning() {
		status["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		status["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, status)
}
