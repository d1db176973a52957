package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed above the table (or alone, for receipts).
type Field struct {
	Label string
	Value string
}

// Document describes a single-page PDF: a title, key/value summary and an
// optional table.
type Document struct {
	Title   string
	Summary []Field
	Table   *Dataset
	Footer  string
}

// PDFExporter renders documents with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF bytes for doc.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Table == nil && len(doc.Summary) == 0 {
		return nil, fmt.Errorf("pdf requires a summary or a table")
	}
	if doc.Table != nil && len(doc.Table.Columns) == 0 {
		return nil, fmt.Errorf("pdf table requires at least one column")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	if len(doc.Summary) > 0 {
		for _, field := range doc.Summary {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(50, 7, tr(field.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.CellFormat(0, 7, tr(field.Value), "", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	if doc.Table != nil {
		pdf.SetFont("Arial", "B", 10)
		colWidth := 190.0 / float64(len(doc.Table.Columns))
		for _, title := range doc.Table.Titles() {
			pdf.CellFormat(colWidth, 8, tr(title), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range doc.Table.Rows {
			for _, col := range doc.Table.Columns {
				pdf.CellFormat(colWidth, 7, tr(row[col.Key]), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if doc.Footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
