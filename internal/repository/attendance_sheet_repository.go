package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-ops-api/internal/models"
)

const sheetColumns = `id, class_id, month, year, status, submitted_at, created_at, updated_at`

// AttendanceSheetRepository persists monthly attendance sheets. The
// (class_id, month, year) unique constraint is the serialization point for
// concurrent upserts.
type AttendanceSheetRepository struct {
	db *sqlx.DB
}

// NewAttendanceSheetRepository constructs the repository.
func NewAttendanceSheetRepository(db *sqlx.DB) *AttendanceSheetRepository {
	return &AttendanceSheetRepository{db: db}
}

type upsertedSheet struct {
	models.AttendanceSheet
	Inserted bool `db:"inserted"`
}

// Upsert returns the sheet for the class and period, creating a DRAFT when
// none exists. The conflict branch rewrites class_id onto itself so RETURNING
// yields the existing row untouched; inserted reports whether a row was created.
func (r *AttendanceSheetRepository) Upsert(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, bool, error) {
	now := time.Now().UTC()
	query := `INSERT INTO attendance_sheets (id, class_id, month, year, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (class_id, month, year)
DO UPDATE SET class_id = EXCLUDED.class_id
RETURNING ` + sheetColumns + `, (xmax = 0) AS inserted`
	var row upsertedSheet
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), classID, period.Month, period.Year, models.SheetStatusDraft, now); err != nil {
		return nil, false, fmt.Errorf("upsert attendance sheet: %w", err)
	}
	sheet := row.AttendanceSheet
	return &sheet, row.Inserted, nil
}

// FindByID returns a sheet by ID; sql.ErrNoRows is returned untouched.
func (r *AttendanceSheetRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	query := `SELECT ` + sheetColumns + ` FROM attendance_sheets WHERE id = $1`
	var sheet models.AttendanceSheet
	if err := r.db.GetContext(ctx, &sheet, query, id); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// FindByPeriod returns the sheet for a class and period; sql.ErrNoRows is returned untouched.
func (r *AttendanceSheetRepository) FindByPeriod(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, error) {
	query := `SELECT ` + sheetColumns + ` FROM attendance_sheets WHERE class_id = $1 AND month = $2 AND year = $3`
	var sheet models.AttendanceSheet
	if err := r.db.GetContext(ctx, &sheet, query, classID, period.Month, period.Year); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// Submit moves a DRAFT sheet to SUBMITTED with a compare-and-set. When the
// sheet is missing or already submitted, sql.ErrNoRows is returned and the
// caller decides which case applies.
func (r *AttendanceSheetRepository) Submit(ctx context.Context, id string, at time.Time) (*models.AttendanceSheet, error) {
	query := `UPDATE attendance_sheets SET status = $2, submitted_at = $3, updated_at = $3
WHERE id = $1 AND status = $4
RETURNING ` + sheetColumns
	var sheet models.AttendanceSheet
	if err := r.db.GetContext(ctx, &sheet, query, id, models.SheetStatusSubmitted, at, models.SheetStatusDraft); err != nil {
		return nil, err
	}
	return &sheet, nil
}
