package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-ops-api/internal/models"
)

const paymentColumns = `id, class_id, tutor_id, amount, currency, status, due_date, paid_date, payment_method, attendance_sheet_id, transaction_id, notes, created_at, updated_at`

// PaymentRepository persists payments and their reminder audit trail.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// UpsertForSheet creates or refreshes the payment linked to a sheet. A PAID
// payment is never overwritten: the conflict update is guarded on status and
// the stored row is returned with preserved set to true.
func (r *PaymentRepository) UpsertForSheet(ctx context.Context, payment *models.Payment) (stored *models.Payment, preserved bool, err error) {
	if payment.AttendanceSheetID == nil || *payment.AttendanceSheetID == "" {
		return nil, false, fmt.Errorf("upsert payment: attendance sheet id is required")
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `INSERT INTO payments (id, class_id, tutor_id, amount, currency, status, due_date, attendance_sheet_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (attendance_sheet_id)
DO UPDATE SET amount = EXCLUDED.amount, currency = EXCLUDED.currency, due_date = EXCLUDED.due_date, tutor_id = EXCLUDED.tutor_id, updated_at = EXCLUDED.updated_at
WHERE payments.status <> 'PAID'
RETURNING ` + paymentColumns
	var row models.Payment
	err = r.db.GetContext(ctx, &row, query, payment.ID, payment.ClassID, payment.TutorID, payment.Amount, payment.Currency, models.PaymentStatusPending, payment.DueDate, *payment.AttendanceSheetID, now)
	if err == nil {
		return &row, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("upsert payment: %w", err)
	}

	existing, err := r.FindBySheetID(ctx, *payment.AttendanceSheetID)
	if err != nil {
		return nil, false, fmt.Errorf("load paid payment: %w", err)
	}
	return existing, true, nil
}

// FindByID returns a payment; sql.ErrNoRows is returned untouched.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindBySheetID returns the payment linked to a sheet; sql.ErrNoRows is returned untouched.
func (r *PaymentRepository) FindBySheetID(ctx context.Context, sheetID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE attendance_sheet_id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, sheetID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns payments matching the filter. Status filtering is applied to
// the effective status relative to filter.AsOf, so OVERDUE matches pending
// rows whose due date has passed.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ClassID != "" {
		conditions = append(conditions, "class_id = "+arg(filter.ClassID))
	}
	if filter.TutorID != "" {
		conditions = append(conditions, "tutor_id = "+arg(filter.TutorID))
	}
	if filter.DueFrom != nil {
		conditions = append(conditions, "due_date >= "+arg(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		conditions = append(conditions, "due_date <= "+arg(*filter.DueTo))
	}
	if filter.Status != nil {
		asOf := filter.AsOf.UTC().Format(models.DateLayout)
		switch *filter.Status {
		case models.PaymentStatusPaid:
			conditions = append(conditions, "status = 'PAID'")
		case models.PaymentStatusPending:
			conditions = append(conditions, "status = 'PENDING' AND due_date >= "+arg(asOf))
		case models.PaymentStatusOverdue:
			conditions = append(conditions, "(status = 'OVERDUE' OR (status = 'PENDING' AND due_date < "+arg(asOf)+"))")
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM payments%s ORDER BY due_date DESC, id LIMIT %d OFFSET %d", paymentColumns, where, size, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// UpdateStatus applies a status change to a payment that is not yet PAID.
// sql.ErrNoRows means the payment is missing or already settled.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	query := `UPDATE payments SET status = $2, paid_date = $3, payment_method = $4, transaction_id = $5, notes = $6, updated_at = $7
WHERE id = $1 AND status <> 'PAID'
RETURNING ` + paymentColumns
	var stored models.Payment
	if err := r.db.GetContext(ctx, &stored, query, payment.ID, payment.Status, payment.PaidDate, payment.PaymentMethod, payment.TransactionID, payment.Notes, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &stored, nil
}

// InsertReminder records a dispatched reminder.
func (r *PaymentRepository) InsertReminder(ctx context.Context, reminder *models.PaymentReminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	const query = `INSERT INTO payment_reminders (id, payment_id, channel, recipient, message, custom, sent_at)
VALUES (:id, :payment_id, :channel, :recipient, :message, :custom, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("insert payment reminder: %w", err)
	}
	return nil
}

// ListReminders returns the reminders sent for a payment, newest first.
func (r *PaymentRepository) ListReminders(ctx context.Context, paymentID string) ([]models.PaymentReminder, error) {
	const query = `SELECT id, payment_id, channel, recipient, message, custom, sent_at FROM payment_reminders WHERE payment_id = $1 ORDER BY sent_at DESC`
	var reminders []models.PaymentReminder
	if err := r.db.SelectContext(ctx, &reminders, query, paymentID); err != nil {
		return nil, fmt.Errorf("list payment reminders: %w", err)
	}
	return reminders, nil
}
