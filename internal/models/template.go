package models

// ActivityTemplate is a reusable starting point for a draft activity.
type ActivityTemplate struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         ActivityType `json:"type"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Instructions string       `json:"instructions,omitempty"`
	MaxGrade     float64      `json:"max_grade"`
	Questions    Questions    `json:"questions"`
}
