package dto

import "github.com/noah-isme/edu-authoring-api/internal/models"

// SelectClassRequest picks the class the draft activity is for.
type SelectClassRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// SelectModeRequest picks how the draft is populated.
type SelectModeRequest struct {
	Mode models.WizardMode `json:"mode" validate:"required,oneof=manual template ai"`
}

// ApplyTemplateRequest pre-fills the draft from the template catalog.
type ApplyTemplateRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

// GenerateActivityRequest asks the content gateway for a whole activity.
type GenerateActivityRequest struct {
	Brief string `json:"brief" validate:"required"`
}

// GenerateQuestionsRequest asks the content gateway for question drafts.
type GenerateQuestionsRequest struct {
	Brief         string                `json:"brief" validate:"required"`
	QuestionTypes []models.QuestionType `json:"question_types" validate:"required,min=1"`
	Difficulty    models.Difficulty     `json:"difficulty"`
	Count         int                   `json:"count" validate:"gte=0,lte=50"`
	Replace       bool                  `json:"replace"`
}

// Options converts the request to gateway options.
func (r GenerateQuestionsRequest) Options() models.GenerationOptions {
	return models.GenerationOptions{
		QuestionTypes: r.QuestionTypes,
		Difficulty:    r.Difficulty,
		Count:         r.Count,
	}
}

// DraftPatch updates draft fields. Nil fields are left untouched.
type DraftPatch struct {
	Title               *string              `json:"title"`
	Description         *string              `json:"description"`
	Instructions        *string              `json:"instructions"`
	Type                *models.ActivityType `json:"type"`
	DueDate             *string              `json:"due_date"`
	DueTime             *string              `json:"due_time"`
	MaxGrade            *float64             `json:"max_grade"`
	AllowLateSubmission *bool                `json:"allow_late_submission"`
	EnableAICorrection  *bool                `json:"enable_ai_correction"`
	RequireFileUpload   *bool                `json:"require_file_upload"`
}

// QuestionRequest carries a new question for the draft.
type QuestionRequest struct {
	Type          models.QuestionType `json:"type"`
	Prompt        string              `json:"prompt"`
	Options       []string            `json:"options"`
	CorrectAnswer string              `json:"correct_answer"`
	Points        float64             `json:"points"`
	Difficulty    models.Difficulty   `json:"difficulty"`
}

// Question converts the request into a draft question without id.
func (r QuestionRequest) Question() models.Question {
	return models.Question{
		Type:          r.Type,
		Prompt:        r.Prompt,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Points:        r.Points,
		Difficulty:    r.Difficulty,
	}
}

// QuestionPatch updates a draft question. Nil fields are left untouched.
type QuestionPatch struct {
	Type          *models.QuestionType `json:"type"`
	Prompt        *string              `json:"prompt"`
	Options       *[]string            `json:"options"`
	CorrectAnswer *string              `json:"correct_answer"`
	Points        *float64             `json:"points"`
	Difficulty    *models.Difficulty   `json:"difficulty"`
}

// SubmitWizardResponse reports the committed activity and the reset session.
type SubmitWizardResponse struct {
	State      models.WizardState    `json:"state"`
	ActivityID string                `json:"activity_id"`
	Session    *models.WizardSession `json:"session"`
}
