package models

// BatchFailure describes a submission the batch could not grade. It stays pending.
type BatchFailure struct {
	SubmissionID string `json:"submission_id"`
	StudentID    string `json:"student_id"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// BatchCorrectionResult aggregates a batch run once every gateway call has resolved.
type BatchCorrectionResult struct {
	ActivityID       string         `json:"activity_id"`
	Corrected        int            `json:"corrected"`
	RoutedToReview   int            `json:"routed_to_review"`
	Failures         []BatchFailure `json:"failures"`
	PendingRemaining int            `json:"pending_remaining"`
}

// CorrectionJob is the queued request for an asynchronous batch correction.
type CorrectionJob struct {
	ID         string `json:"id"`
	ActivityID string `json:"activity_id"`
}
