package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus captures the correction workflow state of a student's submission.
type SubmissionStatus string

const (
	SubmissionNotSubmitted SubmissionStatus = "not_submitted"
	SubmissionPending      SubmissionStatus = "pending"
	SubmissionAICorrected  SubmissionStatus = "ai_corrected"
	SubmissionManualReview SubmissionStatus = "manual_review"
	SubmissionCompleted    SubmissionStatus = "completed"
)

// Terminal reports whether no further transitions are possible.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionNotSubmitted || s == SubmissionCompleted
}

// Answer is a student's response to one question.
type Answer struct {
	QuestionID string `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text"`
}

// Answers is the ordered answer list persisted as JSONB.
type Answers []Answer

// ByQuestion indexes answers by question id. Later duplicates win.
func (as Answers) ByQuestion() map[string]string {
	out := make(map[string]string, len(as))
	for _, a := range as {
		out[a.QuestionID] = a.AnswerText
	}
	return out
}

// Value marshals the answers to JSON for persistence.
func (as Answers) Value() (driver.Value, error) {
	if as == nil {
		as = Answers{}
	}
	data, err := json.Marshal(as)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON column into the answer list.
func (as *Answers) Scan(value interface{}) error {
	if value == nil {
		*as = Answers{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Answers", value)
	}
	if len(data) == 0 {
		*as = Answers{}
		return nil
	}
	if err := json.Unmarshal(data, as); err != nil {
		return fmt.Errorf("unmarshal answers: %w", err)
	}
	return nil
}

// Submission is one student's response to one activity.
type Submission struct {
	ID             string           `db:"id" json:"id"`
	ActivityID     string           `db:"activity_id" json:"activity_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	StudentName    string           `db:"student_name" json:"student_name,omitempty"`
	SubmittedAt    *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	Status         SubmissionStatus `db:"status" json:"status"`
	AIGrade        *float64         `db:"ai_grade" json:"ai_grade,omitempty"`
	AIConfidence   *float64         `db:"ai_confidence" json:"ai_confidence,omitempty"`
	AIFeedback     *string          `db:"ai_feedback" json:"ai_feedback,omitempty"`
	ReviewReason   *string          `db:"review_reason" json:"review_reason,omitempty"`
	ManualGrade    *float64         `db:"manual_grade" json:"manual_grade,omitempty"`
	ManualFeedback *string          `db:"manual_feedback" json:"manual_feedback,omitempty"`
	ReviewedBy     *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CompletedAt    *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	Answers        Answers          `db:"answers" json:"answers"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EffectiveGrade is the authoritative grade: the manual grade when present, else the AI grade.
func (s Submission) EffectiveGrade() *float64 {
	if s.ManualGrade != nil {
		return s.ManualGrade
	}
	return s.AIGrade
}

// EffectiveFeedback mirrors EffectiveGrade for feedback text.
func (s Submission) EffectiveFeedback() *string {
	if s.ManualFeedback != nil {
		return s.ManualFeedback
	}
	return s.AIFeedback
}

// SubmissionTransition describes a compare-and-set status update.
type SubmissionTransition struct {
	From           []SubmissionStatus
	To             SubmissionStatus
	AIGrade        *float64
	AIConfidence   *float64
	AIFeedback     *string
	ReviewReason   *string
	ManualGrade    *float64
	ManualFeedback *string
	ReviewedBy     *string
	CompletedAt    *time.Time
}

// ActivityStats summarises submission progress for an activity.
type ActivityStats struct {
	ActivityID      string                   `json:"activity_id"`
	RosterSize      int                      `json:"roster_size"`
	Submitted       int                      `json:"submitted"`
	SubmittedRatio  float64                  `json:"submitted_ratio"`
	Completed       int                      `json:"completed"`
	CompletionRatio float64                  `json:"completion_ratio"`
	StatusCounts    map[SubmissionStatus]int `json:"status_counts"`
	AverageGrade    *float64                 `json:"average_grade,omitempty"`
	MaxGrade        float64                  `json:"max_grade"`
}
