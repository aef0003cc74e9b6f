package models

import (
	"fmt"
	"time"
)

// ActivityType categorises an assessable activity.
type ActivityType string

const (
	ActivityAssignment ActivityType = "assignment"
	ActivityQuiz       ActivityType = "quiz"
	ActivityProject    ActivityType = "project"
	ActivityExam       ActivityType = "exam"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityAssignment, ActivityQuiz, ActivityProject, ActivityExam:
		return true
	}
	return false
}

// ActivityOrigin records how the draft content was produced.
type ActivityOrigin string

const (
	OriginManual      ActivityOrigin = "manual"
	OriginTemplate    ActivityOrigin = "template"
	OriginAIGenerated ActivityOrigin = "ai_generated"
)

// Date and time layouts used by activity deadlines.
const (
	DueDateLayout  = "2006-01-02"
	DueTimeLayout  = "15:04"
	DefaultDueTime = "23:59"
)

// Activity is an assessable unit of work assigned to a class. Committed activities are immutable.
type Activity struct {
	ID                  string         `db:"id" json:"id"`
	ClassID             string         `db:"class_id" json:"class_id"`
	TeacherID           string         `db:"teacher_id" json:"teacher_id"`
	Title               string         `db:"title" json:"title" validate:"required"`
	Type                ActivityType   `db:"type" json:"type" validate:"required"`
	Description         string         `db:"description" json:"description" validate:"required"`
	Instructions        string         `db:"instructions" json:"instructions,omitempty"`
	DueDate             string         `db:"due_date" json:"due_date" validate:"required"`
	DueTime             string         `db:"due_time" json:"due_time,omitempty"`
	MaxGrade            float64        `db:"max_grade" json:"max_grade" validate:"gte=1,lte=100"`
	AllowLateSubmission bool           `db:"allow_late_submission" json:"allow_late_submission"`
	EnableAICorrection  bool           `db:"enable_ai_correction" json:"enable_ai_correction"`
	RequireFileUpload   bool           `db:"require_file_upload" json:"require_file_upload"`
	Questions           Questions      `db:"questions" json:"questions"`
	Origin              ActivityOrigin `db:"origin" json:"origin"`
	AIContext           *string        `db:"ai_context" json:"ai_context,omitempty"`
	TemplateID          *string        `db:"template_id" json:"template_id,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy of the activity.
func (a Activity) Clone() Activity {
	out := a
	out.Questions = a.Questions.Clone()
	if a.AIContext != nil {
		v := *a.AIContext
		out.AIContext = &v
	}
	if a.TemplateID != nil {
		v := *a.TemplateID
		out.TemplateID = &v
	}
	return out
}

// DueAt combines due date and due time in the given location. A blank due time means end of day.
func (a Activity) DueAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	dueTime := a.DueTime
	if dueTime == "" {
		dueTime = DefaultDueTime
	}
	at, err := time.ParseInLocation(DueDateLayout+" "+DueTimeLayout, a.DueDate+" "+dueTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due date %q %q: %w", a.DueDate, dueTime, err)
	}
	return at, nil
}

// AcceptsSubmissionAt reports whether a submission at now is on time or permitted late.
func (a Activity) AcceptsSubmissionAt(now time.Time) (bool, error) {
	if a.AllowLateSubmission {
		return true, nil
	}
	due, err := a.DueAt(now.Location())
	if err != nil {
		return false, err
	}
	return !now.After(due), nil
}

// ActivitySummary is the list projection of an activity with submission progress.
type ActivitySummary struct {
	ID             string       `db:"id" json:"id"`
	ClassID        string       `db:"class_id" json:"class_id"`
	Title          string       `db:"title" json:"title"`
	Type           ActivityType `db:"type" json:"type"`
	DueDate        string       `db:"due_date" json:"due_date"`
	DueTime        string       `db:"due_time" json:"due_time"`
	MaxGrade       float64      `db:"max_grade" json:"max_grade"`
	SubmittedCount int          `db:"submitted_count" json:"submitted_count"`
	CompletedCount int          `db:"completed_count" json:"completed_count"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
