package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/export"
)

type recordingCSV struct {
	data    export.Dataset
	trailer [][]string
	err     error
}

func (r *recordingCSV) Render(data export.Dataset, trailer ...[]string) ([]byte, error) {
	r.data, r.trailer = data, trailer
	return []byte("csv"), r.err
}

func exportFixture() (*models.AttendanceSheet, *models.Class) {
	topic := "Fractions"
	month, year := 3, 2024
	sheet := &models.AttendanceSheet{ID: "sheet-1", ClassID: "classA", Month: month, Year: year, Status: models.SheetStatusSubmitted}
	sheet.Records = []models.AttendanceRecord{
		{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent, DurationHours: 1.5, TopicsCovered: &topic, SheetMonth: &month, SheetYear: &year},
		{Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusAbsent, DurationHours: 1.5, SheetMonth: &month, SheetYear: &year},
		{Date: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent, DurationHours: 2, SheetMonth: &month, SheetYear: &year},
	}
	sheet.Derive()
	return sheet, &models.Class{ID: "classA", Name: "Maths Grade 8", StudentName: "Asha"}
}

func TestExportSheetCSV(t *testing.T) {
	csv := &recordingCSV{}
	svc := NewExportService("Bright Tutors", csv, nil)
	sheet, class := exportFixture()

	file, err := svc.Sheet(sheet, class, "")
	require.NoError(t, err)

	assert.Equal(t, "attendance-maths-grade-8-2024-03.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	require.Len(t, csv.data.Rows, 3)
	assert.Equal(t, map[string]string{"date": "2024-03-04", "weekday": "Mon", "status": "PRESENT", "hours": "1.50", "topics": "Fractions"}, csv.data.Rows[0])
	assert.Equal(t, [][]string{{"Completed sessions", "2"}, {"Completed hours", "3.50"}}, csv.trailer)
}

func TestExportSheetPDF(t *testing.T) {
	svc := NewExportService("", nil, nil)
	sheet, class := exportFixture()

	file, err := svc.Sheet(sheet, class, "PDF")
	require.NoError(t, err)

	assert.Equal(t, "attendance-maths-grade-8-2024-03.pdf", file.Filename)
	assert.True(t, strings.HasPrefix(string(file.Payload), "%PDF"))
}

func TestExportSheetRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService("", nil, nil)
	sheet, class := exportFixture()

	_, err := svc.Sheet(sheet, class, "xlsx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, "format", appErrors.FromError(err).Details["field"])
}

func TestExportSheetRenderFailureIsInternal(t *testing.T) {
	svc := NewExportService("", &recordingCSV{err: errors.New("disk full")}, nil)
	sheet, class := exportFixture()

	_, err := svc.Sheet(sheet, class, "csv")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestExportReceipt(t *testing.T) {
	svc := NewExportService("Bright Tutors", nil, nil)
	method := models.PaymentMethodUPI
	paid := time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)
	payment := &models.Payment{ID: "pay-1", Amount: 4000, Currency: "INR", Status: models.PaymentStatusPaid,
		DueDate: time.Date(2024, 4, 7, 0, 0, 0, 0, time.UTC), PaidDate: &paid, PaymentMethod: &method}

	file, err := svc.Receipt(payment, &models.Class{Name: "Maths Grade 8", StudentName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, "receipt-pay-1.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Payload), "%PDF"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "maths-grade-8", slug("  Maths -- Grade 8 "))
	assert.Equal(t, "class", slug("!!!"))
	assert.Equal(t, "4000.00", formatHours(4000))
	assert.Equal(t, "INR 4000.00", formatAmount(4000, "INR"))
}
