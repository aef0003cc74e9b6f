package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/jobs"
)

// IncompleteBatchError reports the submissions a queued batch could not grade.
// They stay pending so the teacher can retry or force a review.
type IncompleteBatchError struct {
	ActivityID    string
	SubmissionIDs []string
}

func (e *IncompleteBatchError) Error() string {
	return fmt.Sprintf("batch %s left %d submissions pending", e.ActivityID, len(e.SubmissionIDs))
}

// CorrectionWorker runs queued batch corrections. A batch with grading failures is
// retried so submissions that are still pending get another attempt.
type CorrectionWorker struct {
	corrections *CorrectionService
	logger      *zap.Logger
	timeout     time.Duration
}

// NewCorrectionWorker builds a worker around the correction service.
func NewCorrectionWorker(corrections *CorrectionService, timeout time.Duration, logger *zap.Logger) *CorrectionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CorrectionWorker{corrections: corrections, logger: logger, timeout: timeout}
}

// Handle satisfies jobs.Handler.
func (w *CorrectionWorker) Handle(ctx context.Context, job jobs.Job) error {
	activityID, ok := job.Payload.(string)
	if !ok || activityID == "" {
		w.logger.Error("dropping malformed correction job", zap.String("job_id", job.ID))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := w.corrections.BatchCorrect(ctx, activityID)
	if err != nil {
		return err
	}

	var failed []string
	for _, failure := range result.Failures {
		if failure.Code == appErrors.ErrConflict.Code {
			continue
		}
		failed = append(failed, failure.SubmissionID)
	}
	if len(failed) > 0 {
		return &IncompleteBatchError{ActivityID: activityID, SubmissionIDs: failed}
	}
	w.logger.Info("queued batch correction completed",
		zap.String("job_id", job.ID),
		zap.String("activity_id", activityID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// DeadLetter reports a batch that exhausted its retries. Its failed submissions are
// left pending; only a teacher moves them to review.
func (w *CorrectionWorker) DeadLetter(job jobs.Job, cause error) {
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.Any("activity_id", job.Payload),
		zap.Int("attempt", job.Attempt),
	}
	var incomplete *IncompleteBatchError
	if errors.As(cause, &incomplete) {
		fields = append(fields, zap.Strings("pending_submission_ids", incomplete.SubmissionIDs))
	} else {
		fields = append(fields, zap.Error(cause))
	}
	w.logger.Warn("batch correction exhausted retries", fields...)
	w.corrections.metrics.RecordCorrection(correctionOutcomeExhausted)
}
