package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/export"
)

// Export formats accepted for sheet downloads.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type csvRenderer interface {
	Render(data export.Dataset, trailer ...[]string) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportService renders attendance sheets and payment receipts.
type ExportService struct {
	csv        csvRenderer
	pdf        pdfRenderer
	agencyName string
}

// NewExportService constructs an ExportService; nil renderers default to the pkg/export implementations.
func NewExportService(agencyName string, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if strings.TrimSpace(agencyName) == "" {
		agencyName = "Tutor Ops"
	}
	return &ExportService{csv: csv, pdf: pdf, agencyName: agencyName}
}

var sheetColumns = []export.Column{
	{Key: "date", Title: "Date"},
	{Key: "weekday", Title: "Day"},
	{Key: "status", Title: "Status"},
	{Key: "hours", Title: "Hours"},
	{Key: "topics", Title: "Topics"},
}

// Sheet renders a hydrated sheet in the requested format.
func (s *ExportService) Sheet(sheet *models.AttendanceSheet, class *models.Class, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	dataset := export.Dataset{Columns: sheetColumns, Rows: make([]map[string]string, 0, len(sheet.Records))}
	for _, rec := range sheet.Records {
		topics := ""
		if rec.TopicsCovered != nil {
			topics = *rec.TopicsCovered
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":    rec.Date.Format(models.DateLayout),
			"weekday": rec.Date.Weekday().String()[:3],
			"status":  string(rec.Status),
			"hours":   formatHours(rec.DurationHours),
			"topics":  topics,
		})
	}
	summary := models.Summarize(sheet.Records)
	base := fmt.Sprintf("attendance-%s-%04d-%02d", slug(class.Name), sheet.Year, sheet.Month)

	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset,
			[]string{"Completed sessions", strconv.Itoa(summary.Present)},
			[]string{"Completed hours", formatHours(summary.CompletedHours)},
		)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sheet csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Payload: payload}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(export.Document{
			Title: fmt.Sprintf("Attendance Sheet - %s", sheet.Period().Label()),
			Summary: []export.Field{
				{Label: "Class", Value: class.Name},
				{Label: "Student", Value: class.StudentName},
				{Label: "Status", Value: string(sheet.Status)},
				{Label: "Period", Value: fmt.Sprintf("%s to %s", sheet.FirstDay, sheet.LastDay)},
				{Label: "Completed sessions", Value: strconv.Itoa(summary.Present)},
				{Label: "Completed hours", Value: formatHours(summary.CompletedHours)},
			},
			Table:  &dataset,
			Footer: s.agencyName,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sheet pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	default:
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "format must be csv or pdf", "field", "format", "value", format)
	}
}

// Receipt renders a PDF receipt for a settled payment.
func (s *ExportService) Receipt(payment *models.Payment, class *models.Class) (*ExportFile, error) {
	fields := []export.Field{
		{Label: "Receipt no.", Value: payment.ID},
		{Label: "Student", Value: class.StudentName},
		{Label: "Class", Value: class.Name},
		{Label: "Billed to", Value: class.PayerName()},
		{Label: "Amount", Value: formatAmount(payment.Amount, payment.Currency)},
		{Label: "Due date", Value: payment.DueDate.Format(models.DateLayout)},
	}
	if payment.PaidDate != nil {
		fields = append(fields, export.Field{Label: "Paid on", Value: payment.PaidDate.Format(models.DateLayout)})
	}
	if payment.PaymentMethod != nil {
		fields = append(fields, export.Field{Label: "Method", Value: string(*payment.PaymentMethod)})
	}
	if payment.TransactionID != nil {
		fields = append(fields, export.Field{Label: "Transaction", Value: *payment.TransactionID})
	}
	payload, err := s.pdf.Render(export.Document{
		Title:   s.agencyName + " - Payment Receipt",
		Summary: fields,
		Footer:  "Generated " + time.Now().UTC().Format(models.DateLayout),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return &ExportFile{Filename: "receipt-" + payment.ID + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', 2, 64)
}

func formatAmount(amount float64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "class"
	}
	return out
}
