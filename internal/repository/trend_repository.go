package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-ops-api/internal/models"
)

// TrendRepository loads raw history rows for dashboard time series.
type TrendRepository struct {
	db *sqlx.DB
}

// NewTrendRepository constructs the repository.
func NewTrendRepository(db *sqlx.DB) *TrendRepository {
	return &TrendRepository{db: db}
}

type paymentTrendRow struct {
	Date   time.Time            `db:"date"`
	Amount float64              `db:"amount"`
	Status models.PaymentStatus `db:"status"`
}

type attendanceTrendRow struct {
	Date          time.Time               `db:"date"`
	Status        models.AttendanceStatus `db:"status"`
	DurationHours float64                 `db:"duration_hours"`
}

// PaymentPoints returns one point per payment due in the range with the
// metrics amount, paid and payments.
func (r *TrendRepository) PaymentPoints(ctx context.Context, filter models.TrendFilter) ([]models.TimeSeriesPoint, error) {
	where, args := trendScope("p", "due_date", filter)
	query := `SELECT p.due_date AS date, p.amount, p.status FROM payments p` + where + ` ORDER BY p.due_date`
	var rows []paymentTrendRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load payment trend: %w", err)
	}
	points := make([]models.TimeSeriesPoint, 0, len(rows))
	for _, row := range rows {
		paid := 0.0
		if row.Status == models.PaymentStatusPaid {
			paid = row.Amount
		}
		points = append(points, models.TimeSeriesPoint{
			Date:    row.Date,
			Metrics: map[string]float64{"amount": row.Amount, "paid": paid, "payments": 1},
		})
	}
	return points, nil
}

// AttendancePoints returns one point per attendance record in the range with
// the metrics sessions, hours and absences. Only completed sessions count
// towards sessions and hours.
func (r *TrendRepository) AttendancePoints(ctx context.Context, filter models.TrendFilter) ([]models.TimeSeriesPoint, error) {
	where, args := trendScope("a", "date", filter)
	query := `SELECT a.date, a.status, a.duration_hours FROM attendance_records a JOIN classes c ON c.id = a.class_id` + where + ` ORDER BY a.date`
	var rows []attendanceTrendRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load attendance trend: %w", err)
	}
	points := make([]models.TimeSeriesPoint, 0, len(rows))
	for _, row := range rows {
		metrics := map[string]float64{"sessions": 0, "hours": 0, "absences": 0}
		if row.Status.Completed() {
			metrics["sessions"] = 1
			metrics["hours"] = row.DurationHours
		}
		if row.Status == models.AttendanceStatusAbsent {
			metrics["absences"] = 1
		}
		points = append(points, models.TimeSeriesPoint{Date: row.Date, Metrics: metrics})
	}
	return points, nil
}

// trendScope builds the WHERE clause shared by trend queries. Payments carry
// tutor_id directly; attendance rows reach it through the joined class.
func trendScope(alias, dateColumn string, filter models.TrendFilter) (string, []interface{}) {
	conditions := []string{
		fmt.Sprintf("%s.%s >= $1", alias, dateColumn),
		fmt.Sprintf("%s.%s <= $2", alias, dateColumn),
	}
	args := []interface{}{filter.From.Format(models.DateLayout), filter.To.Format(models.DateLayout)}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("%s.class_id = $%d", alias, len(args)))
	}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		tutorColumn := alias + ".tutor_id"
		if alias == "a" {
			tutorColumn = "c.tutor_id"
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", tutorColumn, len(args)))
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
