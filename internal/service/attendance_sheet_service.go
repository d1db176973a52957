package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	"github.com/noah-isme/tutor-ops-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/logger"
)

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type sheetStore interface {
	Upsert(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, bool, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceSheet, error)
	FindByPeriod(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, error)
	Submit(ctx context.Context, id string, at time.Time) (*models.AttendanceSheet, error)
}

type attendanceStore interface {
	ListByClass(ctx context.Context, classID string) ([]models.AttendanceRecord, error)
	UpsertInSheets(ctx context.Context, batches []repository.SheetBatch) ([]models.AttendanceRecord, error)
}

type sheetExporter interface {
	Sheet(sheet *models.AttendanceSheet, class *models.Class, format string) (*ExportFile, error)
}

// AttendanceSheetServiceParams groups constructor dependencies.
type AttendanceSheetServiceParams struct {
	Classes    classReader
	Sheets     sheetStore
	Attendance attendanceStore
	Exporter   sheetExporter
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
	Now        func() time.Time
}

// AttendanceSheetService owns the monthly sheet lifecycle: idempotent upsert,
// daily marking while DRAFT and the one-way submit.
type AttendanceSheetService struct {
	classes    classReader
	sheets     sheetStore
	attendance attendanceStore
	exporter   sheetExporter
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewAttendanceSheetService constructs the service with sane defaults.
func NewAttendanceSheetService(params AttendanceSheetServiceParams) *AttendanceSheetService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Exporter == nil {
		params.Exporter = NewExportService("", nil, nil)
	}
	return &AttendanceSheetService{
		classes:    params.Classes,
		sheets:     params.Sheets,
		attendance: params.Attendance,
		exporter:   params.Exporter,
		cache:      params.Cache,
		metrics:    params.Metrics,
		validator:  params.Validator,
		logger:     params.Logger,
		now:        params.Now,
	}
}

// UpsertSheet returns the sheet for (classID, month, year), creating a DRAFT
// on first access. Repeated calls return the same sheet and records.
func (s *AttendanceSheetService) UpsertSheet(ctx context.Context, classID string, month, year int) (*models.AttendanceSheet, error) {
	period, err := s.validatePeriod(classID, month, year)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}

	stop := s.metrics.TimeQuery("sheet.upsert")
	sheet, created, err := s.sheets.Upsert(ctx, classID, period)
	stop()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert attendance sheet")
	}
	if created {
		s.log(ctx).Info("attendance sheet created",
			zap.String("sheet_id", sheet.ID),
			zap.String("class_id", classID),
			zap.Int("month", month),
			zap.Int("year", year),
		)
	}
	if err := s.hydrate(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// FindSheet returns an existing sheet for the period without creating one.
func (s *AttendanceSheetService) FindSheet(ctx context.Context, classID string, month, year int) (*models.AttendanceSheet, error) {
	period, err := s.validatePeriod(classID, month, year)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	sheet, err := s.sheets.FindByPeriod(ctx, classID, period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "attendance sheet not found", "class_id", classID, "month", month, "year", year)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}
	if err := s.hydrate(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// GetSheet returns a sheet with its records and summary.
func (s *AttendanceSheetService) GetSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error) {
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// ListRecordsForSheet filters the class history to the records belonging to
// the period, ordered by date. Records without a sheet tag match on their
// own date. An unknown class is reported as not found.
func (s *AttendanceSheetService) ListRecordsForSheet(ctx context.Context, classID string, month, year int) ([]models.AttendanceRecord, error) {
	period, err := s.validatePeriod(classID, month, year)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	return s.recordsFor(ctx, classID, period)
}

// SubmitSheet freezes a DRAFT sheet. A second submit fails with an
// invalid-state error; the stored sheet is never transitioned twice.
func (s *AttendanceSheetService) SubmitSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error) {
	if strings.TrimSpace(sheetID) == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "sheet id is required", "field", "sheet_id")
	}

	stop := s.metrics.TimeQuery("sheet.submit")
	sheet, err := s.sheets.Submit(ctx, sheetID, s.now().UTC())
	stop()
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit attendance sheet")
		}
		current, loadErr := s.loadSheet(ctx, sheetID)
		if loadErr != nil {
			return nil, loadErr
		}
		if !current.Status.CanTransition(models.SheetStatusSubmitted) {
			return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "attendance sheet already submitted", "sheet_id", sheetID, "status", string(current.Status))
		}
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "attendance sheet changed concurrently, retry", "sheet_id", sheetID)
	}

	s.metrics.RecordSheetSubmitted()
	s.log(ctx).Info("attendance sheet submitted",
		zap.String("sheet_id", sheet.ID),
		zap.String("class_id", sheet.ClassID),
		zap.Int("month", sheet.Month),
		zap.Int("year", sheet.Year),
	)
	s.cache.Invalidate(ctx, attendanceTrendPattern)
	if err := s.hydrate(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// MarkAttendance records one day for a class into the sheet of that day's
// month. A zero markedAt falls back to the service clock.
func (s *AttendanceSheetService) MarkAttendance(ctx context.Context, classID string, req dto.MarkAttendanceRequest, markedAt time.Time) (*models.AttendanceRecord, error) {
	stored, err := s.mark(ctx, classID, []dto.MarkAttendanceRequest{req}, markedAt)
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// BulkMarkAttendance records several days at once. Duplicate dates in the
// payload are rejected, and nothing is written when any target sheet is
// already submitted.
func (s *AttendanceSheetService) BulkMarkAttendance(ctx context.Context, classID string, req dto.BulkMarkAttendanceRequest, markedAt time.Time) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	return s.mark(ctx, classID, req.Items, markedAt)
}

// ExportSheet renders a sheet as csv or pdf.
func (s *AttendanceSheetService) ExportSheet(ctx context.Context, sheetID, format string) (*ExportFile, error) {
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	class, err := s.loadClass(ctx, sheet.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, sheet); err != nil {
		return nil, err
	}
	return s.exporter.Sheet(sheet, class, format)
}

func (s *AttendanceSheetService) mark(ctx context.Context, classID string, items []dto.MarkAttendanceRequest, markedAt time.Time) ([]models.AttendanceRecord, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "class id is required", "field", "class_id")
	}

	if markedAt.IsZero() {
		markedAt = s.now()
	}
	markedAt = markedAt.UTC()
	byPeriod := make(map[models.SheetPeriod][]models.AttendanceRecord)
	seen := make(map[string]int, len(items))
	var duplicates []models.AttendanceBulkConflict
	for i, item := range items {
		if err := s.validator.Struct(item); err != nil {
			return nil, appErrors.WithDetails(
				appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance mark"),
				"", "index", i, "date", item.Date)
		}
		date, err := time.Parse(models.DateLayout, item.Date)
		if err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "date must be YYYY-MM-DD", "field", "date", "index", i, "value", item.Date)
		}
		if first, dup := seen[item.Date]; dup {
			duplicates = append(duplicates, models.AttendanceBulkConflict{Date: item.Date, Reason: "duplicate of item " + strconv.Itoa(first)})
			continue
		}
		seen[item.Date] = i

		period := models.PeriodOf(date)
		month, year := period.Month, period.Year
		byPeriod[period] = append(byPeriod[period], models.AttendanceRecord{
			ClassID:       classID,
			Date:          date,
			Status:        models.AttendanceStatus(item.Status),
			DurationHours: item.DurationHours,
			TopicsCovered: item.TopicsCovered,
			SheetMonth:    &month,
			SheetYear:     &year,
			MarkedAt:      markedAt,
		})
	}
	if len(duplicates) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "duplicate dates in payload", "field", "items", "conflicts", duplicates)
	}

	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}

	periods := make([]models.SheetPeriod, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].FirstDay().Before(periods[j].FirstDay())
	})

	sheets := make([]*models.AttendanceSheet, len(periods))
	for i, period := range periods {
		sheet, _, err := s.sheets.Upsert(ctx, classID, period)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert attendance sheet")
		}
		if sheet.Submitted() {
			return nil, submittedSheetError(sheet)
		}
		sheets[i] = sheet
	}

	batches := make([]repository.SheetBatch, len(sheets))
	for i, sheet := range sheets {
		batches[i] = repository.SheetBatch{SheetID: sheet.ID, Records: byPeriod[periods[i]]}
	}
	stop := s.metrics.TimeQuery("attendance.upsert")
	stored, err := s.attendance.UpsertInSheets(ctx, batches)
	stop()
	if err != nil {
		var frozen *repository.SubmittedSheetError
		if errors.As(err, &frozen) {
			for _, sheet := range sheets {
				if sheet.ID == frozen.SheetID {
					return nil, submittedSheetError(sheet)
				}
			}
		}
		if errors.Is(err, repository.ErrSheetSubmitted) {
			return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "attendance sheet is submitted and can no longer be edited", "class_id", classID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Date.Before(stored[j].Date) })

	s.log(ctx).Info("attendance marked", zap.String("class_id", classID), zap.Int("records", len(stored)), zap.Int("sheets", len(sheets)))
	s.cache.Invalidate(ctx, attendanceTrendPattern)
	return stored, nil
}

func (s *AttendanceSheetService) hydrate(ctx context.Context, sheet *models.AttendanceSheet) error {
	records, err := s.recordsFor(ctx, sheet.ClassID, sheet.Period())
	if err != nil {
		return err
	}
	summary := models.Summarize(records)
	sheet.Records = records
	sheet.Summary = &summary
	sheet.Derive()
	return nil
}

func (s *AttendanceSheetService) recordsFor(ctx context.Context, classID string, period models.SheetPeriod) ([]models.AttendanceRecord, error) {
	stop := s.metrics.TimeQuery("attendance.list")
	history, err := s.attendance.ListByClass(ctx, classID)
	stop()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	records := make([]models.AttendanceRecord, 0, len(history))
	for _, rec := range history {
		if rec.BelongsTo(period) {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func (s *AttendanceSheetService) validatePeriod(classID string, month, year int) (models.SheetPeriod, error) {
	if strings.TrimSpace(classID) == "" {
		return models.SheetPeriod{}, appErrors.WithDetails(appErrors.ErrValidation, "class id is required", "field", "class_id")
	}
	period := models.SheetPeriod{Month: month, Year: year}
	if month < 1 || month > 12 {
		return period, appErrors.WithDetails(appErrors.ErrValidation, "month must be between 1 and 12", "field", "month", "value", month)
	}
	if !period.Valid() {
		return period, appErrors.WithDetails(appErrors.ErrValidation, "year is out of range", "field", "year", "value", year)
	}
	return period, nil
}

func (s *AttendanceSheetService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "class not found", "class_id", classID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *AttendanceSheetService) loadSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error) {
	sheet, err := s.sheets.FindByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "attendance sheet not found", "sheet_id", sheetID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}
	return sheet, nil
}

func submittedSheetError(sheet *models.AttendanceSheet) error {
	return appErrors.WithDetails(appErrors.ErrInvalidState, "attendance sheet is submitted and can no longer be edited",
		"sheet_id", sheet.ID, "month", sheet.Month, "year", sheet.Year)
}

func (s *AttendanceSheetService) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.logger)
}
