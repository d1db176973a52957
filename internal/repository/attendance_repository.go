package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-ops-api/internal/models"
)

// ErrSheetSubmitted is returned when a write targets a frozen sheet.
var ErrSheetSubmitted = errors.New("attendance sheet already submitted")

const attendanceColumns = `id, class_id, date, status, duration_hours, topics_covered, sheet_month, sheet_year, marked_at, created_at, updated_at`

// AttendanceRepository persists per-day attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListByClass returns the full attendance history of a class ordered by date.
func (r *AttendanceRepository) ListByClass(ctx context.Context, classID string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE class_id = $1 ORDER BY date ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, classID); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// SheetBatch is the set of records destined for one sheet.
type SheetBatch struct {
	SheetID string
	Records []models.AttendanceRecord
}

// SubmittedSheetError names the frozen sheet that blocked a write.
type SubmittedSheetError struct {
	SheetID string
}

func (e *SubmittedSheetError) Error() string {
	return fmt.Sprintf("attendance sheet %s already submitted", e.SheetID)
}

// Is matches ErrSheetSubmitted.
func (e *SubmittedSheetError) Is(target error) bool {
	return target == ErrSheetSubmitted
}

// UpsertInSheets writes records keyed on (class_id, date) in one transaction.
// Every owning sheet is row-locked, in id order, before the first insert, so
// a concurrent submit either waits for the write or makes the whole call fail
// with a *SubmittedSheetError. All records are written or none are.
func (r *AttendanceRepository) UpsertInSheets(ctx context.Context, batches []SheetBatch) (stored []models.AttendanceRecord, err error) {
	total := 0
	for _, b := range batches {
		total += len(b.Records)
	}
	if total == 0 {
		return []models.AttendanceRecord{}, nil
	}
	ordered := append([]SheetBatch(nil), batches...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SheetID < ordered[j].SheetID })

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, b := range ordered {
		var status models.SheetStatus
		if err = tx.GetContext(ctx, &status, `SELECT status FROM attendance_sheets WHERE id = $1 FOR UPDATE`, b.SheetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("lock attendance sheet: %w", err)
		}
		if status == models.SheetStatusSubmitted {
			err = &SubmittedSheetError{SheetID: b.SheetID}
			return nil, err
		}
	}

	query := `INSERT INTO attendance_records (id, class_id, date, status, duration_hours, topics_covered, sheet_month, sheet_year, marked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (class_id, date)
DO UPDATE SET status = EXCLUDED.status, duration_hours = EXCLUDED.duration_hours, topics_covered = EXCLUDED.topics_covered,
	sheet_month = EXCLUDED.sheet_month, sheet_year = EXCLUDED.sheet_year, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns
	now := time.Now().UTC()
	stored = make([]models.AttendanceRecord, 0, total)
	for _, b := range ordered {
		for i := range b.Records {
			rec := b.Records[i]
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			var saved models.AttendanceRecord
			if err = tx.GetContext(ctx, &saved, query, rec.ID, rec.ClassID, rec.Date, rec.Status, rec.DurationHours, rec.TopicsCovered, rec.SheetMonth, rec.SheetYear, rec.MarkedAt, now); err != nil {
				return nil, fmt.Errorf("upsert attendance record %s: %w", rec.Date.Format(models.DateLayout), err)
			}
			stored = append(stored, saved)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance records: %w", err)
	}
	return stored, nil
}
