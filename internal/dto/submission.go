package dto

import "github.com/noah-isme/edu-authoring-api/internal/models"

// RecordAnswersRequest is the student's answer sheet.
type RecordAnswersRequest struct {
	Answers models.Answers `json:"answers" validate:"dive"`
}

// MarkNotSubmittedRequest records a student who delivered nothing.
type MarkNotSubmittedRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	StudentName string `json:"student_name"`
}

// SubmissionQuery filters submission listings.
type SubmissionQuery struct {
	Status []models.SubmissionStatus `form:"status"`
}

// ForceReviewRequest sends a submission to manual review.
type ForceReviewRequest struct {
	Reason string `json:"reason"`
}

// FinalizeRequest carries the teacher's grade.
type FinalizeRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback string   `json:"feedback"`
}

// CorrectionJobResponse is returned when a batch is queued.
type CorrectionJobResponse struct {
	JobID      string `json:"job_id"`
	ActivityID string `json:"activity_id"`
	Status     string `json:"status"`
}
