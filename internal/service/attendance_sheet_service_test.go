package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
)

type sheetFixture struct {
	svc        *AttendanceSheetService
	sheets     *memSheetStore
	attendance *memAttendanceStore
	metrics    *MetricsService
	cache      *memCache
}

func newSheetFixture(t *testing.T) sheetFixture {
	t.Helper()
	email := "ravi@example.com"
	parent := "Ravi"
	classes := &memClassStore{classes: map[string]*models.Class{
		"classA": {ID: "classA", Name: "Maths Grade 8", StudentName: "Asha", TutorID: "tutor-1", ParentName: &parent, ParentEmail: &email, RateType: models.RatePerSession, Rate: 500, Currency: "INR", Active: true},
	}}
	sheets := newMemSheetStore()
	attendance := newMemAttendanceStore(sheets)
	metrics := NewMetricsService()
	cache := newMemCache()
	svc := NewAttendanceSheetService(AttendanceSheetServiceParams{
		Classes:    classes,
		Sheets:     sheets,
		Attendance: attendance,
		Cache:      NewCacheService(cache, metrics, time.Minute, nil, true),
		Metrics:    metrics,
		Now:        fixedClock(time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC)),
	})
	return sheetFixture{svc: svc, sheets: sheets, attendance: attendance, metrics: metrics, cache: cache}
}

func present(date string) dto.MarkAttendanceRequest {
	return dto.MarkAttendanceRequest{Date: date, Status: "PRESENT", DurationHours: 1.5}
}

func TestUpsertSheetIsIdempotent(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	first, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	_, err = f.svc.MarkAttendance(ctx, "classA", present("2024-03-04"), time.Time{})
	require.NoError(t, err)

	second, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	third, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, second.ID, third.ID)
	assert.Equal(t, second.Records, third.Records)
	assert.Len(t, third.Records, 1)
	assert.Len(t, f.sheets.byID, 1)

	assert.Equal(t, "March 2024", third.PeriodLabel)
	assert.Equal(t, "2024-03-01", third.FirstDay)
	assert.Equal(t, "2024-03-31", third.LastDay)
	assert.Equal(t, models.SheetStatusDraft, third.Status)
}

func TestUpsertSheetConcurrentCallersShareOneSheet(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sheet, err := f.svc.UpsertSheet(ctx, "classA", 2, 2024)
			if assert.NoError(t, err) {
				ids[i] = sheet.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.sheets.byID, 1)
}

func TestUpsertSheetLeapYearBounds(t *testing.T) {
	f := newSheetFixture(t)
	sheet, err := f.svc.UpsertSheet(context.Background(), "classA", 2, 2024)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", sheet.LastDay)
}

func TestUpsertSheetValidation(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertSheet(ctx, "classA", 13, 2024)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "month", appErr.Details["field"])

	_, err = f.svc.UpsertSheet(ctx, "classA", 3, 0)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.UpsertSheet(ctx, "missing", 3, 2024)
	require.Error(t, err)
	appErr = appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "missing", appErr.Details["class_id"])
}

func TestListRecordsForSheetUsesTagThenDate(t *testing.T) {
	f := newSheetFixture(t)
	march, year := 3, 2024
	// Tagged into March although dated the last day of February.
	f.attendance.seed(models.AttendanceRecord{ClassID: "classA", Date: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent, DurationHours: 1, SheetMonth: &march, SheetYear: &year})
	// Untagged legacy rows fall back to their own date.
	f.attendance.seed(models.AttendanceRecord{ClassID: "classA", Date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusAbsent, DurationHours: 1})
	f.attendance.seed(models.AttendanceRecord{ClassID: "classA", Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent, DurationHours: 1})

	records, err := f.svc.ListRecordsForSheet(context.Background(), "classA", 3, 2024)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-02-29", records[0].Date.Format(models.DateLayout))
	assert.Equal(t, "2024-03-10", records[1].Date.Format(models.DateLayout))

	feb, err := f.svc.ListRecordsForSheet(context.Background(), "classA", 2, 2024)
	require.NoError(t, err)
	require.Len(t, feb, 1)
	assert.Equal(t, "2024-02-10", feb[0].Date.Format(models.DateLayout))
}

func TestSubmitSheetTwice(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	sheet, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)

	submitted, err := f.svc.SubmitSheet(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SheetStatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC), *submitted.SubmittedAt)

	_, err = f.svc.SubmitSheet(ctx, sheet.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, sheet.ID, appErr.Details["sheet_id"])

	assert.Len(t, f.sheets.byID, 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().SheetsSubmitted)
	assert.Contains(t, f.cache.deleted, attendanceTrendPattern)
}

func TestSubmitSheetConcurrentOnlyOneWins(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, invalid int
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitSheet(ctx, sheet.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, appErrors.ErrInvalidState):
				invalid++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, invalid)
}

func TestSubmitMissingSheet(t *testing.T) {
	f := newSheetFixture(t)
	_, err := f.svc.SubmitSheet(context.Background(), "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMarkAttendanceRejectedAfterSubmit(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	sheet, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	_, err = f.svc.SubmitSheet(ctx, sheet.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkAttendance(ctx, "classA", present("2024-03-05"), time.Time{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, sheet.ID, appErr.Details["sheet_id"])

	// Other months stay editable.
	rec, err := f.svc.MarkAttendance(ctx, "classA", present("2024-04-01"), time.Time{})
	require.NoError(t, err)
	require.NotNil(t, rec.SheetMonth)
	assert.Equal(t, 4, *rec.SheetMonth)
}

func TestMarkAttendanceOverwritesSameDay(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	first, err := f.svc.MarkAttendance(ctx, "classA", present("2024-03-05"), time.Time{})
	require.NoError(t, err)
	second, err := f.svc.MarkAttendance(ctx, "classA", dto.MarkAttendanceRequest{Date: "2024-03-05", Status: "CANCELLED", DurationHours: 1}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	records, err := f.svc.ListRecordsForSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AttendanceStatusCancelled, records[0].Status)
}

func TestMarkAttendanceValidation(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	cases := []dto.MarkAttendanceRequest{
		{Date: "2024-03-05", Status: "LATE", DurationHours: 1},
		{Date: "2024-03-05", Status: "PRESENT", DurationHours: 0},
		{Date: "05/03/2024", Status: "PRESENT", DurationHours: 1},
	}
	for _, req := range cases {
		_, err := f.svc.MarkAttendance(ctx, "classA", req, time.Time{})
		assert.True(t, errors.Is(err, appErrors.ErrValidation), "%+v", req)
	}
	assert.Zero(t, f.sheets.upserts)
}

func TestBulkMarkAttendanceSpansMonths(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	records, err := f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-04-02"), present("2024-03-28"), present("2024-03-29"),
	}}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-03-28", records[0].Date.Format(models.DateLayout))
	assert.Len(t, f.sheets.byID, 2)
}

func TestBulkMarkAttendanceRejectsDuplicates(t *testing.T) {
	f := newSheetFixture(t)
	_, err := f.svc.BulkMarkAttendance(context.Background(), "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-03-02"), present("2024-03-02"),
	}}, time.Time{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Details["conflicts"])
	assert.Empty(t, f.attendance.records)
}

func TestBulkMarkAttendanceWritesNothingWhenAnySheetSubmitted(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	march, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	_, err = f.svc.SubmitSheet(ctx, march.ID)
	require.NoError(t, err)

	_, err = f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-04-02"), present("2024-03-29"),
	}}, time.Time{})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, f.attendance.records)
}

func TestGetSheetSummary(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	_, err := f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-03-01"),
		present("2024-03-04"),
		{Date: "2024-03-06", Status: "ABSENT", DurationHours: 1.5},
		{Date: "2024-03-08", Status: "PENDING", DurationHours: 1.5},
	}}, time.Time{})
	require.NoError(t, err)

	sheet, err := f.svc.FindSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	got, err := f.svc.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Present)
	assert.Equal(t, 1, got.Summary.Absent)
	assert.Equal(t, 1, got.Summary.Pending)
	assert.Equal(t, 4, got.Summary.Total)
	assert.InDelta(t, 3.0, got.Summary.CompletedHours, 1e-9)
}

func TestFindSheetDoesNotCreate(t *testing.T) {
	f := newSheetFixture(t)
	_, err := f.svc.FindSheet(context.Background(), "classA", 5, 2024)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.sheets.byID)
}

func TestExportSheetFormats(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	_, err := f.svc.MarkAttendance(ctx, "classA", present("2024-03-04"), time.Time{})
	require.NoError(t, err)
	sheet, err := f.svc.FindSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)

	csvFile, err := f.svc.ExportSheet(ctx, sheet.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "attendance-maths-grade-8-2024-03.csv", csvFile.Filename)
	assert.Contains(t, string(csvFile.Payload), "2024-03-04,Mon,PRESENT,1.50")

	pdfFile, err := f.svc.ExportSheet(ctx, sheet.ID, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfFile.ContentType)

	_, err = f.svc.ExportSheet(ctx, sheet.ID, "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestListRecordsForSheetMissingClass(t *testing.T) {
	f := newSheetFixture(t)
	records, err := f.svc.ListRecordsForSheet(context.Background(), "no-such-class", 3, 2024)
	require.Error(t, err)
	assert.Nil(t, records)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "no-such-class", appErr.Details["class_id"])
}

func TestFindSheetMissingClass(t *testing.T) {
	f := newSheetFixture(t)
	_, err := f.svc.FindSheet(context.Background(), "no-such-class", 3, 2024)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "no-such-class", appErr.Details["class_id"])
}

func TestMarkAttendanceUsesCallerTimestamp(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	markedAt := time.Date(2024, 3, 5, 16, 45, 0, 0, time.FixedZone("IST", 5*3600+1800))

	rec, err := f.svc.MarkAttendance(ctx, "classA", present("2024-03-05"), markedAt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 11, 15, 0, 0, time.UTC), rec.MarkedAt)
	assert.Equal(t, time.UTC, rec.MarkedAt.Location())

	records, err := f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-03-06"), present("2024-03-07"),
	}}, markedAt)
	require.NoError(t, err)
	for _, r := range records {
		assert.True(t, markedAt.Equal(r.MarkedAt))
	}

	// Zero falls back to the service clock.
	fallback, err := f.svc.MarkAttendance(ctx, "classA", present("2024-03-08"), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC), fallback.MarkedAt)
}

func TestUpsertSheetAfterSubmitReturnsFrozenSheet(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()

	sheet, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	_, err = f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-03-04"), present("2024-03-06"),
	}}, time.Time{})
	require.NoError(t, err)
	submitted, err := f.svc.SubmitSheet(ctx, sheet.ID)
	require.NoError(t, err)

	again, err := f.svc.UpsertSheet(ctx, "classA", 3, 2024)
	require.NoError(t, err)
	assert.Equal(t, sheet.ID, again.ID)
	assert.Equal(t, models.SheetStatusSubmitted, again.Status)
	assert.Equal(t, submitted.Records, again.Records)
	assert.Len(t, again.Records, 2)
	assert.Len(t, f.sheets.byID, 1)
}

func TestBulkMarkAttendanceSubmitRaceWritesNothing(t *testing.T) {
	f := newSheetFixture(t)
	ctx := context.Background()
	// The April sheet is submitted after the service saw it as DRAFT.
	f.attendance.beforeWrite = func() {
		for id, sheet := range f.sheets.byID {
			if sheet.Month == 4 {
				_, err := f.sheets.Submit(ctx, id, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
				require.NoError(t, err)
			}
		}
	}

	_, err := f.svc.BulkMarkAttendance(ctx, "classA", dto.BulkMarkAttendanceRequest{Items: []dto.MarkAttendanceRequest{
		present("2024-03-29"), present("2024-04-02"),
	}}, time.Time{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, 4, appErr.Details["month"])
	assert.Empty(t, f.attendance.records)
}
