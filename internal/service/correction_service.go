package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/jobs"
)

// CorrectionJobType labels batch correction jobs on the worker queue.
const CorrectionJobType = "batch_correction"

const (
	defaultConfidenceThreshold = 70
	defaultBatchConcurrency    = 4
	correctionOutcomeFailed    = "failed"
	correctionOutcomeExhausted = "retries_exhausted"
	forcedReviewReason         = "forced review by teacher"
)

// ErrQueueUnavailable signals the async correction queue cannot take more work.
var ErrQueueUnavailable = appErrors.New("QUEUE_UNAVAILABLE", http.StatusServiceUnavailable, "correction queue unavailable")

type correctionSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	ListByActivity(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error)
	Transition(ctx context.Context, id string, t models.SubmissionTransition) (*models.Submission, error)
}

type correctionActivityReader interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type correctionClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type correctionEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// CorrectionConfig tunes confidence routing and batch fan-out.
type CorrectionConfig struct {
	ConfidenceThreshold float64
	BatchConcurrency    int
}

// CorrectionService drives submissions through AI correction and teacher review.
type CorrectionService struct {
	submissions correctionSubmissionStore
	activities  correctionActivityReader
	classes     correctionClassReader
	gateway     ContentGateway
	metrics     *MetricsService
	queue       correctionEnqueuer
	cfg         CorrectionConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewCorrectionService constructs a CorrectionService.
func NewCorrectionService(
	submissions correctionSubmissionStore,
	activities correctionActivityReader,
	classes correctionClassReader,
	gateway ContentGateway,
	metrics *MetricsService,
	cfg CorrectionConfig,
	logger *zap.Logger,
) *CorrectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	return &CorrectionService{
		submissions: submissions,
		activities:  activities,
		classes:     classes,
		gateway:     gateway,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// SetQueue attaches the worker queue used by EnqueueBatch.
func (s *CorrectionService) SetQueue(queue correctionEnqueuer) {
	s.queue = queue
}

// Threshold returns the confidence below which corrections go to manual review.
func (s *CorrectionService) Threshold() float64 {
	return s.cfg.ConfidenceThreshold
}

// Correct grades a single pending submission.
func (s *CorrectionService) Correct(ctx context.Context, submissionID string) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(submission, models.SubmissionPending, "only pending submissions can be corrected"); err != nil {
		return nil, err
	}
	activity, err := s.loadCorrectableActivity(ctx, submission.ActivityID)
	if err != nil {
		return nil, err
	}
	return s.correctOne(ctx, activity, submission)
}

// BatchCorrect grades every pending submission of an activity with bounded concurrency.
// Failures are isolated per submission; the aggregate is built after every call resolved.
func (s *CorrectionService) BatchCorrect(ctx context.Context, activityID string) (*models.BatchCorrectionResult, error) {
	activity, err := s.loadCorrectableActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	pending, err := s.submissions.ListByActivity(ctx, activityID, models.SubmissionPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending submissions")
	}

	result := &models.BatchCorrectionResult{ActivityID: activityID, Failures: []models.BatchFailure{}}
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		sem       = make(chan struct{}, s.cfg.BatchConcurrency)
		conflicts int
	)

	for i := range pending {
		submission := pending[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			updated, err := s.correctOne(ctx, activity, &submission)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appErr := appErrors.FromError(err)
				if appErr.Code == appErrors.ErrConflict.Code {
					conflicts++
				}
				result.Failures = append(result.Failures, models.BatchFailure{
					SubmissionID: submission.ID,
					StudentID:    submission.StudentID,
					Code:         appErr.Code,
					Message:      appErr.Error(),
				})
				return
			}
			switch updated.Status {
			case models.SubmissionAICorrected:
				result.Corrected++
			case models.SubmissionManualReview:
				result.RoutedToReview++
			}
		}()
	}
	wg.Wait()

	// A conflict means another caller already moved the submission out of pending.
	result.PendingRemaining = len(pending) - result.Corrected - result.RoutedToReview - conflicts
	s.logger.Info("batch correction finished",
		zap.String("activity_id", activityID),
		zap.Int("pending", len(pending)),
		zap.Int("corrected", result.Corrected),
		zap.Int("routed_to_review", result.RoutedToReview),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// EnqueueBatch schedules BatchCorrect on the worker queue and returns the job id.
func (s *CorrectionService) EnqueueBatch(ctx context.Context, activityID string) (*models.CorrectionJob, error) {
	if _, err := s.loadCorrectableActivity(ctx, activityID); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(ErrQueueUnavailable, "async correction is not configured")
	}
	job := &models.CorrectionJob{ID: uuid.NewString(), ActivityID: activityID}
	if err := s.queue.TryEnqueue(jobs.Job{ID: job.ID, Type: CorrectionJobType, Payload: activityID}); err != nil {
		return nil, appErrors.WrapClone(ErrQueueUnavailable, err, "")
	}
	s.logger.Info("batch correction enqueued", zap.String("job_id", job.ID), zap.String("activity_id", activityID))
	return job, nil
}

// Confirm accepts the AI grade as final. Confirming a completed submission is a no-op.
func (s *CorrectionService) Confirm(ctx context.Context, submissionID, teacherID string) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status == models.SubmissionCompleted {
		return submission, nil
	}
	if err := requireStatus(submission, models.SubmissionAICorrected, "only AI-corrected submissions can be confirmed"); err != nil {
		return nil, err
	}
	if submission.AIConfidence == nil || *submission.AIConfidence < s.cfg.ConfidenceThreshold {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "AI confidence is below the threshold; finalize a manual grade instead")
	}

	completedAt := s.now().UTC()
	updated, err := s.submissions.Transition(ctx, submissionID, models.SubmissionTransition{
		From:           []models.SubmissionStatus{models.SubmissionAICorrected},
		To:             models.SubmissionCompleted,
		ManualGrade:    submission.AIGrade,
		ManualFeedback: submission.AIFeedback,
		ReviewedBy:     &teacherID,
		CompletedAt:    &completedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			current, loadErr := s.loadSubmission(ctx, submissionID)
			if loadErr == nil && current.Status == models.SubmissionCompleted {
				return current, nil
			}
		}
		return nil, s.transitionError(err, submissionID)
	}
	s.metrics.RecordCorrection(string(models.SubmissionCompleted))
	return updated, nil
}

// ForceReview routes a pending or AI-corrected submission to manual review.
func (s *CorrectionService) ForceReview(ctx context.Context, submissionID, teacherID, reason string) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	switch submission.Status {
	case models.SubmissionManualReview:
		return submission, nil
	case models.SubmissionPending, models.SubmissionAICorrected:
	default:
		return nil, terminalError(submission)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = forcedReviewReason
	}
	updated, err := s.submissions.Transition(ctx, submissionID, models.SubmissionTransition{
		From:         []models.SubmissionStatus{models.SubmissionPending, models.SubmissionAICorrected},
		To:           models.SubmissionManualReview,
		ReviewReason: &reason,
		ReviewedBy:   optionalString(teacherID),
	})
	if err != nil {
		return nil, s.transitionError(err, submissionID)
	}
	s.metrics.RecordCorrection(string(models.SubmissionManualReview))
	return updated, nil
}

// Finalize records the teacher's grade and completes the submission.
func (s *CorrectionService) Finalize(ctx context.Context, submissionID, teacherID string, grade float64, feedback string) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	switch submission.Status {
	case models.SubmissionManualReview, models.SubmissionAICorrected:
	case models.SubmissionPending:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission must be corrected or sent to review before it can be finalized")
	default:
		return nil, terminalError(submission)
	}

	activity, err := s.loadActivity(ctx, submission.ActivityID)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(grade) || grade < 0 || grade > activity.MaxGrade {
		return nil, appErrors.NewValidationError(map[string]string{
			"grade": fmt.Sprintf("must be between 0 and %g", activity.MaxGrade),
		})
	}

	feedback = strings.TrimSpace(feedback)
	completedAt := s.now().UTC()
	updated, err := s.submissions.Transition(ctx, submissionID, models.SubmissionTransition{
		From:           []models.SubmissionStatus{models.SubmissionManualReview, models.SubmissionAICorrected},
		To:             models.SubmissionCompleted,
		ManualGrade:    &grade,
		ManualFeedback: &feedback,
		ReviewedBy:     &teacherID,
		CompletedAt:    &completedAt,
	})
	if err != nil {
		return nil, s.transitionError(err, submissionID)
	}
	s.metrics.RecordCorrection(string(models.SubmissionCompleted))
	return updated, nil
}

// Stats summarises submission progress and grades for an activity.
func (s *CorrectionService) Stats(ctx context.Context, activityID string) (*models.ActivityStats, error) {
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.submissions.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	stats := &models.ActivityStats{
		ActivityID:   activityID,
		StatusCounts: make(map[models.SubmissionStatus]int, 5),
		MaxGrade:     activity.MaxGrade,
	}
	if s.classes != nil {
		class, err := s.classes.FindByID(ctx, activity.ClassID)
		switch {
		case err == nil:
			stats.RosterSize = class.StudentCount
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}

	var gradeSum float64
	var graded int
	for _, sub := range submissions {
		stats.StatusCounts[sub.Status]++
		if sub.Status != models.SubmissionNotSubmitted {
			stats.Submitted++
		}
		if sub.Status == models.SubmissionCompleted {
			stats.Completed++
		}
		if grade := sub.EffectiveGrade(); grade != nil {
			gradeSum += *grade
			graded++
		}
	}
	if stats.RosterSize < len(submissions) {
		stats.RosterSize = len(submissions)
	}
	if stats.RosterSize > 0 {
		stats.SubmittedRatio = round2(float64(stats.Submitted) / float64(stats.RosterSize))
		stats.CompletionRatio = round2(float64(stats.Completed) / float64(stats.RosterSize))
	}
	if graded > 0 {
		avg := round2(gradeSum / float64(graded))
		stats.AverageGrade = &avg
	}
	return stats, nil
}

func (s *CorrectionService) correctOne(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.Submission, error) {
	proposal, err := s.gateway.GradeSubmission(ctx, activity, submission)
	if err != nil {
		s.metrics.RecordCorrection(correctionOutcomeFailed)
		s.logger.Warn("grading failed", zap.String("submission_id", submission.ID), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.WrapClone(appErrors.ErrGradingFailure, err, "")
	}
	if proposal == nil || proposal.Grade < 0 || proposal.Grade > activity.MaxGrade ||
		proposal.Confidence < 0 || proposal.Confidence > 100 {
		s.metrics.RecordCorrection(correctionOutcomeFailed)
		return nil, appErrors.Clone(appErrors.ErrGradingFailure, "grader returned an out-of-range proposal")
	}

	grade := proposal.Grade
	confidence := proposal.Confidence
	feedback := proposal.Feedback
	transition := models.SubmissionTransition{
		From:         []models.SubmissionStatus{models.SubmissionPending},
		To:           models.SubmissionAICorrected,
		AIGrade:      &grade,
		AIConfidence: &confidence,
		AIFeedback:   &feedback,
	}
	if confidence < s.cfg.ConfidenceThreshold {
		reason := fmt.Sprintf("low AI confidence (%.0f%%)", confidence)
		transition.To = models.SubmissionManualReview
		transition.ReviewReason = &reason
	}

	updated, err := s.submissions.Transition(ctx, submission.ID, transition)
	if err != nil {
		return nil, s.transitionError(err, submission.ID)
	}
	s.metrics.RecordCorrection(string(updated.Status))
	return updated, nil
}

func (s *CorrectionService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *CorrectionService) loadActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

func (s *CorrectionService) loadCorrectableActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.loadActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !activity.EnableAICorrection {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "AI correction is disabled for this activity")
	}
	return activity, nil
}

func (s *CorrectionService) transitionError(err error, submissionID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "submission status changed concurrently")
	}
	s.logger.Error("submission transition failed", zap.String("submission_id", submissionID), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
}

func requireStatus(submission *models.Submission, want models.SubmissionStatus, message string) error {
	if submission.Status == want {
		return nil
	}
	if submission.Status.Terminal() {
		return terminalError(submission)
	}
	return appErrors.Clone(appErrors.ErrPreconditionFailed, message)
}

func terminalError(submission *models.Submission) error {
	if submission.Status == models.SubmissionCompleted {
		return appErrors.Clone(appErrors.ErrFinalized, "submission is already completed")
	}
	return appErrors.Clone(appErrors.ErrPreconditionFailed, "submission was never submitted")
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
