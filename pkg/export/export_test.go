package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sheetDataset() Dataset {
	return Dataset{
		Columns: []Column{{Key: "date", Title: "Date"}, {Key: "status", Title: "Status"}, {Key: "hours"}},
		Rows: []map[string]string{
			{"date": "2024-03-01", "status": "PRESENT", "hours": "1.50"},
			{"date": "2024-03-04", "status": "ABSENT", "hours": "1.50"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sheetDataset(), []string{"Completed sessions", "1"})
	require.NoError(t, err)
	assert.Equal(t, "Date,Status,hours\n2024-03-01,PRESENT,1.50\n2024-03-04,ABSENT,1.50\nCompleted sessions,1\n", string(out))
}

func TestCSVExporterRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := sheetDataset()
	out, err := NewPDFExporter().Render(Document{
		Title:   "Attendance March 2024",
		Summary: []Field{{Label: "Class", Value: "Maths - Asha"}},
		Table:   &data,
		Footer:  "Generated by Tutor Ops",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterRequiresContent(t *testing.T) {
	_, err := NewPDFExporter().Render(Document{Title: "empty"})
	assert.Error(t, err)
}
