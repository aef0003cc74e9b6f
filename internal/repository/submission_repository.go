package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-authoring-api/internal/models"
)

// ErrDuplicateSubmission is returned when a student already has a submission for the activity.
var ErrDuplicateSubmission = errors.New("submission already exists")

const uniqueViolation = "23505"

const submissionColumns = `id, activity_id, student_id, student_name, submitted_at, status, ai_grade, ai_confidence,
       ai_feedback, review_reason, manual_grade, manual_feedback, reviewed_by, completed_at, answers, updated_at`

// SubmissionRepository persists student submissions and their correction state.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission. A second row for the same activity and student yields ErrDuplicateSubmission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.UpdatedAt.IsZero() {
		submission.UpdatedAt = time.Now().UTC()
	}
	if submission.Answers == nil {
		submission.Answers = models.Answers{}
	}
	const query = `INSERT INTO submissions
	(id, activity_id, student_id, student_name, submitted_at, status, answers, updated_at)
	VALUES (:id, :activity_id, :student_id, :student_name, :submitted_at, :status, :answers, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID fetches a submission or returns sql.ErrNoRows.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByActivity returns the submissions of an activity, optionally restricted to some statuses.
func (r *SubmissionRepository) ListByActivity(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE activity_id = ?`
	args := []interface{}{activityID}
	if len(statuses) > 0 {
		query += ` AND status IN (?)`
		args = append(args, statuses)
	}
	query += ` ORDER BY student_name, student_id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build submission list query: %w", err)
	}
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// Transition moves a submission to a new status only if its current status is one of t.From.
// It returns the updated row, or sql.ErrNoRows when the row is missing or its status moved on.
func (r *SubmissionRepository) Transition(ctx context.Context, id string, t models.SubmissionTransition) (*models.Submission, error) {
	if len(t.From) == 0 {
		return nil, fmt.Errorf("transition submission %s: no source status", id)
	}
	args := []interface{}{t.To, time.Now().UTC()}
	setParts := []string{"status = $1", "updated_at = $2"}
	set := func(column string, value interface{}) {
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if t.AIGrade != nil {
		set("ai_grade", *t.AIGrade)
	}
	if t.AIConfidence != nil {
		set("ai_confidence", *t.AIConfidence)
	}
	if t.AIFeedback != nil {
		set("ai_feedback", *t.AIFeedback)
	}
	if t.ReviewReason != nil {
		set("review_reason", *t.ReviewReason)
	}
	if t.ManualGrade != nil {
		set("manual_grade", *t.ManualGrade)
	}
	if t.ManualFeedback != nil {
		set("manual_feedback", *t.ManualFeedback)
	}
	if t.ReviewedBy != nil {
		set("reviewed_by", *t.ReviewedBy)
	}
	if t.CompletedAt != nil {
		set("completed_at", *t.CompletedAt)
	}

	args = append(args, id)
	idPos := len(args)
	placeholders := make([]string, len(t.From))
	for i, status := range t.From {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE submissions SET %s WHERE id = $%d AND status IN (%s) RETURNING %s",
		strings.Join(setParts, ", "),
		idPos,
		strings.Join(placeholders, ","),
		submissionColumns,
	)

	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, args...); err != nil {
		return nil, err
	}
	return &submission, nil
}
