package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
	QuestionProblem        QuestionType = "problem"
)

// QuestionTypes lists every type in display order.
var QuestionTypes = []QuestionType{
	QuestionMultipleChoice,
	QuestionTrueFalse,
	QuestionShortAnswer,
	QuestionEssay,
	QuestionProblem,
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AutoGradable reports whether answers of this type can be checked against a stored key.
func (t QuestionType) AutoGradable() bool {
	return t != QuestionEssay && t.Valid()
}

// Difficulty grades question hardness.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is a single gradable item of an activity.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type" validate:"required"`
	Prompt        string       `json:"prompt" validate:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        float64      `json:"points" validate:"gt=0"`
	Difficulty    Difficulty   `json:"difficulty" validate:"required"`
}

// Questions is the ordered question list persisted as JSONB on the activity row.
type Questions []Question

// TotalPoints sums the points of every question.
func (qs Questions) TotalPoints() float64 {
	var total float64
	for _, q := range qs {
		total += q.Points
	}
	return total
}

// Find returns the index of the question with the given id or -1.
func (qs Questions) Find(id string) int {
	for i, q := range qs {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so drafts never share option slices.
func (qs Questions) Clone() Questions {
	if qs == nil {
		return nil
	}
	out := make(Questions, len(qs))
	for i, q := range qs {
		out[i] = q
		if q.Options != nil {
			out[i].Options = append([]string(nil), q.Options...)
		}
	}
	return out
}

// Value marshals the questions to JSON for persistence.
func (qs Questions) Value() (driver.Value, error) {
	if qs == nil {
		qs = Questions{}
	}
	data, err := json.Marshal(qs)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON column into the question list.
func (qs *Questions) Scan(value interface{}) error {
	if value == nil {
		*qs = Questions{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Questions", value)
	}
	if len(data) == 0 {
		*qs = Questions{}
		return nil
	}
	if err := json.Unmarshal(data, qs); err != nil {
		return fmt.Errorf("unmarshal questions: %w", err)
	}
	return nil
}
