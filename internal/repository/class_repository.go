package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-ops-api/internal/models"
)

const classColumns = `id, name, student_name, tutor_id, parent_name, parent_email, parent_phone, rate_type, rate, currency, active, created_at, updated_at`

// ClassRepository reads tutoring classes, the rate and payer-contact source.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class record by ID. sql.ErrNoRows is returned untouched
// so callers can map it to a not-found error.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListActiveByTutor returns the active classes owned by a tutor.
func (r *ClassRepository) ListActiveByTutor(ctx context.Context, tutorID string) ([]models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE tutor_id = $1 AND active = TRUE ORDER BY name`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, tutorID); err != nil {
		return nil, fmt.Errorf("list classes for tutor: %w", err)
	}
	return classes, nil
}
