package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/repository"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

type rosterClassStore interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type rosterActivityStore interface {
	Create(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	ListByClass(ctx context.Context, classID string) ([]models.ActivitySummary, error)
}

type rosterSubmissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	ListByActivity(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error)
}

// RosterService is the boundary to classes, committed activities and student submissions.
type RosterService struct {
	classes     rosterClassStore
	activities  rosterActivityStore
	submissions rosterSubmissionStore
	logger      *zap.Logger
	now         func() time.Time
	location    *time.Location
}

// NewRosterService constructs a RosterService. Deadlines are evaluated in loc, UTC when nil.
func NewRosterService(classes rosterClassStore, activities rosterActivityStore, submissions rosterSubmissionStore, loc *time.Location, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RosterService{
		classes:     classes,
		activities:  activities,
		submissions: submissions,
		logger:      logger,
		now:         time.Now,
		location:    loc,
	}
}

// GetClass returns the roster class or a RosterError when it is unknown.
func (s *RosterService) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, appErrors.NewValidationError(map[string]string{"class_id": "is required"})
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRoster, fmt.Sprintf("class %s not found", classID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// SubmitActivity persists a validated activity for the class and returns its id.
func (s *RosterService) SubmitActivity(ctx context.Context, classID string, activity *models.Activity) (string, error) {
	if activity == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "activity is required")
	}
	if _, err := s.GetClass(ctx, classID); err != nil {
		return "", err
	}

	record := activity.Clone()
	record.ID = ""
	record.ClassID = classID
	record.CreatedAt = s.now().UTC()
	if err := s.activities.Create(ctx, &record); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store activity")
	}

	s.logger.Info("activity committed",
		zap.String("activity_id", record.ID),
		zap.String("class_id", classID),
		zap.String("origin", string(record.Origin)),
		zap.Int("questions", len(record.Questions)),
	)
	return record.ID, nil
}

// GetActivity returns a committed activity.
func (s *RosterService) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

// ListActivities returns the activities of a class with submission progress.
func (s *RosterService) ListActivities(ctx context.Context, classID string) ([]models.ActivitySummary, error) {
	if _, err := s.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	summaries, err := s.activities.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	if summaries == nil {
		summaries = []models.ActivitySummary{}
	}
	return summaries, nil
}

// ListSubmissions returns every submission of an activity, optionally filtered by status.
func (s *RosterService) ListSubmissions(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	for _, status := range statuses {
		if !validSubmissionStatus(status) {
			return nil, appErrors.NewValidationError(map[string]string{"status": "unknown status " + string(status)})
		}
	}
	submissions, err := s.submissions.ListByActivity(ctx, activityID, statuses...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	if submissions == nil {
		submissions = []models.Submission{}
	}
	return submissions, nil
}

// RecordAnswers registers a student's answers as a pending submission.
func (s *RosterService) RecordAnswers(ctx context.Context, activityID string, student models.UserInfo, answers models.Answers) (*models.Submission, error) {
	activity, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.location)
	ok, err := activity.AcceptsSubmissionAt(now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "activity has an unreadable deadline")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "the deadline has passed and late submissions are not allowed")
	}

	if err := checkAnswersBelong(activity, answers); err != nil {
		return nil, err
	}
	if len(answers) == 0 && len(activity.Questions) > 0 {
		return nil, appErrors.NewValidationError(map[string]string{
			"answers": "no answers given; mark the student as not submitted instead",
		})
	}
	// Every auto-gradable question needs an answer or the submission could never be corrected.
	if err := checkAnswerCoverage(activity, &models.Submission{Answers: answers}); err != nil {
		return nil, err
	}

	submittedAt := now.UTC()
	submission := &models.Submission{
		ActivityID:  activityID,
		StudentID:   student.ID,
		StudentName: student.FullName,
		SubmittedAt: &submittedAt,
		Status:      models.SubmissionPending,
		Answers:     answers,
		UpdatedAt:   submittedAt,
	}
	if err := s.create(ctx, submission); err != nil {
		return nil, err
	}
	s.logger.Debug("submission recorded", zap.String("submission_id", submission.ID), zap.String("activity_id", activityID))
	return submission, nil
}

// MarkNotSubmitted records that a student delivered nothing. The record is terminal.
func (s *RosterService) MarkNotSubmitted(ctx context.Context, activityID, studentID, studentName string) (*models.Submission, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.NewValidationError(map[string]string{"student_id": "is required"})
	}
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	submission := &models.Submission{
		ActivityID:  activityID,
		StudentID:   studentID,
		StudentName: strings.TrimSpace(studentName),
		Status:      models.SubmissionNotSubmitted,
		Answers:     models.Answers{},
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.create(ctx, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *RosterService) create(ctx context.Context, submission *models.Submission) error {
	if err := s.submissions.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return appErrors.Clone(appErrors.ErrConflict, "student already has a submission for this activity")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}
	return nil
}

func checkAnswersBelong(activity *models.Activity, answers models.Answers) error {
	fields := make(map[string]string)
	seen := make(map[string]struct{}, len(answers))
	for i, answer := range answers {
		key := "answers[" + strconv.Itoa(i) + "]"
		if activity.Questions.Find(answer.QuestionID) < 0 {
			fields[key] = "unknown question " + answer.QuestionID
			continue
		}
		if _, dup := seen[answer.QuestionID]; dup {
			fields[key] = "duplicate answer for question " + answer.QuestionID
		}
		seen[answer.QuestionID] = struct{}{}
	}
	if len(fields) > 0 {
		return appErrors.NewValidationError(fields)
	}
	return nil
}

func validSubmissionStatus(s models.SubmissionStatus) bool {
	switch s {
	case models.SubmissionNotSubmitted, models.SubmissionPending, models.SubmissionAICorrected,
		models.SubmissionManualReview, models.SubmissionCompleted:
		return true
	}
	return false
}
