package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/response"
)

type trendService interface {
	ParseTrendQuery(q dto.TrendQuery) (models.TrendFilter, error)
	Payments(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error)
	Attendance(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error)
	AggregateRaw(req dto.AggregateRequest) (*models.TimeSeries, error)
}

type systemSnapshotter interface {
	Snapshot() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	trends trendService
	system systemSnapshotter
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(trends trendService, system systemSnapshotter) *AnalyticsHandler {
	return &AnalyticsHandler{trends: trends, system: system}
}

// Payments godoc
// @Summary Payment trend (amount, paid, payments) bucketed by interval
// @Tags Analytics
// @Produce json
// @Param from query string true "From (YYYY-MM-DD)"
// @Param to query string true "To (YYYY-MM-DD)"
// @Param interval query string false "DAILY, WEEKLY, MONTHLY (default) or YEARLY"
// @Param class_id query string false "Class ID"
// @Param tutor_id query string false "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/payments [get]
func (h *AnalyticsHandler) Payments(c *gin.Context) {
	h.trend(c, func(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error) {
		return h.trends.Payments(ctx, filter)
	})
}

// Attendance godoc
// @Summary Attendance trend (sessions, hours, absences) bucketed by interval
// @Tags Analytics
// @Produce json
// @Param from query string true "From (YYYY-MM-DD)"
// @Param to query string true "To (YYYY-MM-DD)"
// @Param interval query string false "DAILY, WEEKLY, MONTHLY (default) or YEARLY"
// @Param class_id query string false "Class ID"
// @Param tutor_id query string false "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/attendance [get]
func (h *AnalyticsHandler) Attendance(c *gin.Context) {
	h.trend(c, func(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error) {
		return h.trends.Attendance(ctx, filter)
	})
}

// Aggregate godoc
// @Summary Aggregate ad-hoc points into buckets
// @Tags Analytics
// @Accept json
// @Produce json
// @Param payload body dto.AggregateRequest true "Raw points"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /analytics/aggregate [post]
func (h *AnalyticsHandler) Aggregate(c *gin.Context) {
	if h.trends == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.AggregateRequest
	if !bindJSON(c, &req, "invalid aggregate payload") {
		return
	}
	start := time.Now()
	series, err := h.trends.AggregateRaw(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, series, nil, timedMeta(c, start, false))
}

// System godoc
// @Summary Instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.system == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	snapshot := h.system.Snapshot()
	response.JSON(c, http.StatusOK, snapshot, nil, timedMeta(c, start, false))
}

func (h *AnalyticsHandler) trend(c *gin.Context, load func(context.Context, models.TrendFilter) (*models.TimeSeries, bool, error)) {
	if h.trends == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.TrendQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trend query"))
		return
	}
	filter, err := h.trends.ParseTrendQuery(query)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	series, cacheHit, err := load(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, series, nil, timedMeta(c, start, cacheHit))
}
