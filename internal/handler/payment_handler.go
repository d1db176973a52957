package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	"github.com/noah-isme/tutor-ops-api/internal/service"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/response"
)

type paymentService interface {
	Reconcile(ctx context.Context, sheetID string) (*models.Payment, error)
	GetPayment(ctx context.Context, paymentID string, asOf time.Time) (*models.Payment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error)
	UpdateStatus(ctx context.Context, paymentID string, req dto.UpdatePaymentStatusRequest) (*models.Payment, error)
	SendReminder(ctx context.Context, paymentID string, req dto.SendReminderRequest) (*dto.ReminderResult, error)
	Receipt(ctx context.Context, paymentID string) (*service.ExportFile, error)
}

// PaymentHandler exposes reconciliation, billing state and reminders.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Reconcile godoc
// @Summary Raise or refresh the payment of a submitted sheet
// @Tags Payments
// @Produce json
// @Param id path string true "Sheet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /sheets/{id}/reconcile [post]
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	payment, err := h.payments.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param class_id query string false "Class ID"
// @Param tutor_id query string false "Tutor ID"
// @Param status query string false "PENDING, PAID or OVERDUE"
// @Param due_from query string false "Due on or after (YYYY-MM-DD)"
// @Param due_to query string false "Due on or before (YYYY-MM-DD)"
// @Param as_of query string false "Evaluate overdue as of (YYYY-MM-DD). Defaults to today"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.PaymentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment query"))
		return
	}
	filter, err := paymentFilter(c, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.payments.ListPayments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, map[string]interface{}{"as_of": filter.AsOf.Format(models.DateLayout)})
}

// Get godoc
// @Summary Get a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Param as_of query string false "Evaluate overdue as of (YYYY-MM-DD). Defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	asOf, err := asOfParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// UpdateStatus godoc
// @Summary Change the billing state of a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body dto.UpdatePaymentStatusRequest true "Status change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/status [patch]
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.UpdatePaymentStatusRequest
	if !bindJSON(c, &req, "invalid payment status payload") {
		return
	}
	payment, err := h.payments.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// SendReminder godoc
// @Summary Send a payment reminder to the payer
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body dto.SendReminderRequest false "Optional custom message"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /payments/{id}/reminders [post]
func (h *PaymentHandler) SendReminder(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.SendReminderRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid reminder payload") {
		return
	}
	result, err := h.payments.SendReminder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Receipt godoc
// @Summary Download the PDF receipt of a paid payment
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	if h.payments == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	file, err := h.payments.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func paymentFilter(c *gin.Context, query dto.PaymentListQuery) (models.PaymentFilter, error) {
	filter := models.PaymentFilter{
		ClassID:  strings.TrimSpace(query.ClassID),
		TutorID:  strings.TrimSpace(query.TutorID),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := models.PaymentStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	var err error
	if filter.DueFrom, err = optionalDate("due_from", query.DueFrom); err != nil {
		return filter, err
	}
	if filter.DueTo, err = optionalDate("due_to", query.DueTo); err != nil {
		return filter, err
	}
	if filter.AsOf, err = asOfParam(c); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid "+field+", expected YYYY-MM-DD", "field", field, "value", raw)
	}
	return &parsed, nil
}
