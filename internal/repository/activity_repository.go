package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-authoring-api/internal/models"
)

const activityColumns = `id, class_id, teacher_id, title, type, description, instructions, due_date, due_time,
       max_grade, allow_late_submission, enable_ai_correction, require_file_upload, questions, origin,
       ai_context, template_id, created_at`

// ActivityRepository persists committed activities.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a committed activity, assigning id and timestamp when missing.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if activity.Questions == nil {
		activity.Questions = models.Questions{}
	}
	const query = `INSERT INTO activities
	(id, class_id, teacher_id, title, type, description, instructions, due_date, due_time, max_grade,
	 allow_late_submission, enable_ai_correction, require_file_upload, questions, origin, ai_context, template_id, created_at)
	VALUES (:id, :class_id, :teacher_id, :title, :type, :description, :instructions, :due_date, :due_time, :max_grade,
	 :allow_late_submission, :enable_ai_correction, :require_file_upload, :questions, :origin, :ai_context, :template_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// FindByID fetches an activity or returns sql.ErrNoRows.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListByClass returns activity summaries with submission progress ordered by deadline.
func (r *ActivityRepository) ListByClass(ctx context.Context, classID string) ([]models.ActivitySummary, error) {
	const query = `SELECT a.id, a.class_id, a.title, a.type, a.due_date, a.due_time, a.max_grade, a.created_at,
       COUNT(s.id) FILTER (WHERE s.status <> 'not_submitted') AS submitted_count,
       COUNT(s.id) FILTER (WHERE s.status = 'completed') AS completed_count
	FROM activities a
	LEFT JOIN submissions s ON s.activity_id = a.id
	WHERE a.class_id = $1
	GROUP BY a.id
	ORDER BY a.due_date, a.due_time, a.created_at`
	var summaries []models.ActivitySummary
	if err := r.db.SelectContext(ctx, &summaries, query, classID); err != nil {
		return nil, fmt.Errorf("list activities by class: %w", err)
	}
	return summaries, nil
}
