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

type attendanceSheetService interface {
	UpsertSheet(ctx context.Context, classID string, month, year int) (*models.AttendanceSheet, error)
	FindSheet(ctx context.Context, classID string, month, year int) (*models.AttendanceSheet, error)
	GetSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error)
	SubmitSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error)
	MarkAttendance(ctx context.Context, classID string, req dto.MarkAttendanceRequest, markedAt time.Time) (*models.AttendanceRecord, error)
	BulkMarkAttendance(ctx context.Context, classID string, req dto.BulkMarkAttendanceRequest, markedAt time.Time) ([]models.AttendanceRecord, error)
	ExportSheet(ctx context.Context, sheetID, format string) (*service.ExportFile, error)
}

// AttendanceSheetHandler exposes the monthly attendance cycle.
type AttendanceSheetHandler struct {
	sheets attendanceSheetService
}

// NewAttendanceSheetHandler constructs the handler.
func NewAttendanceSheetHandler(sheets attendanceSheetService) *AttendanceSheetHandler {
	return &AttendanceSheetHandler{sheets: sheets}
}

// Upsert godoc
// @Summary Create or fetch the monthly sheet of a class
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/sheets/{year}/{month} [put]
func (h *AttendanceSheetHandler) Upsert(c *gin.Context) {
	month, year, ok := h.period(c)
	if !ok {
		return
	}
	sheet, err := h.sheets.UpsertSheet(c.Request.Context(), c.Param("classId"), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Find godoc
// @Summary Get the monthly sheet of a class with its records
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/sheets/{year}/{month} [get]
func (h *AttendanceSheetHandler) Find(c *gin.Context) {
	month, year, ok := h.period(c)
	if !ok {
		return
	}
	sheet, err := h.sheets.FindSheet(c.Request.Context(), c.Param("classId"), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Get godoc
// @Summary Get a sheet by id
// @Tags Attendance
// @Produce json
// @Param id path string true "Sheet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sheets/{id} [get]
func (h *AttendanceSheetHandler) Get(c *gin.Context) {
	sheet, err := h.sheets.GetSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Submit godoc
// @Summary Submit a draft sheet
// @Tags Attendance
// @Produce json
// @Param id path string true "Sheet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sheets/{id}/submit [post]
func (h *AttendanceSheetHandler) Submit(c *gin.Context) {
	sheet, err := h.sheets.SubmitSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Mark godoc
// @Summary Mark one day of attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance mark"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{classId}/attendance [post]
func (h *AttendanceSheetHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.sheets.MarkAttendance(c.Request.Context(), c.Param("classId"), req, time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Mark several days of attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.BulkMarkAttendanceRequest true "Attendance marks"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{classId}/attendance/bulk [post]
func (h *AttendanceSheetHandler) BulkMark(c *gin.Context) {
	var req dto.BulkMarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	records, err := h.sheets.BulkMarkAttendance(c.Request.Context(), c.Param("classId"), req, time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil, map[string]interface{}{"count": len(records)})
}

// Export godoc
// @Summary Download a sheet as CSV or PDF
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Sheet ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /sheets/{id}/export [get]
func (h *AttendanceSheetHandler) Export(c *gin.Context) {
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", service.ExportFormatCSV)))
	file, err := h.sheets.ExportSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func (h *AttendanceSheetHandler) period(c *gin.Context) (int, int, bool) {
	if h.sheets == nil {
		response.Error(c, appErrors.ErrInternal)
		return 0, 0, false
	}
	year, err := pathInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	month, err := pathInt(c, "month")
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	return month, year, true
}
