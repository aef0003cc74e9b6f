package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

var trueFalseAliases = map[string]string{
	"true":       "true",
	"false":      "false",
	"verdadeiro": "true",
	"falso":      "false",
	"v":          "true",
	"f":          "false",
}

// ActivityValidator checks questions and activities before they leave the wizard.
type ActivityValidator struct {
	validate *validator.Validate
}

// NewActivityValidator builds a validator reporting fields by their JSON names.
func NewActivityValidator(v *validator.Validate) *ActivityValidator {
	if v == nil {
		v = validator.New()
	}
	v.RegisterTagNameFunc(jsonFieldName)
	return &ActivityValidator{validate: v}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

// NormalizeQuestion trims text and drops content that does not apply to the question type.
func NormalizeQuestion(q *models.Question) {
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	switch q.Type {
	case models.QuestionMultipleChoice:
		options := make([]string, 0, len(q.Options))
		for _, opt := range q.Options {
			if trimmed := strings.TrimSpace(opt); trimmed != "" {
				options = append(options, trimmed)
			}
		}
		q.Options = options
	case models.QuestionTrueFalse:
		q.Options = nil
		if canonical, ok := trueFalseAliases[strings.ToLower(q.CorrectAnswer)]; ok {
			q.CorrectAnswer = canonical
		}
	case models.QuestionEssay:
		q.Options = nil
		q.CorrectAnswer = ""
	default:
		q.Options = nil
	}
}

// ValidateQuestion normalises q and reports every offending field.
func (v *ActivityValidator) ValidateQuestion(q *models.Question) error {
	fields := v.questionFields(q)
	if len(fields) > 0 {
		return appErrors.NewValidationError(fields)
	}
	return nil
}

func (v *ActivityValidator) questionFields(q *models.Question) map[string]string {
	NormalizeQuestion(q)
	fields := v.structFields(q)

	if q.Type != "" && !q.Type.Valid() {
		fields["type"] = "must be one of multiple_choice, true_false, short_answer, essay, problem"
	}
	if q.Difficulty != "" && !q.Difficulty.Valid() {
		fields["difficulty"] = "must be one of easy, medium, hard"
	}

	switch q.Type {
	case models.QuestionMultipleChoice:
		if len(q.Options) < 2 {
			fields["options"] = "multiple choice needs at least 2 options"
		}
		if q.CorrectAnswer == "" {
			fields["correct_answer"] = "is required"
		} else if !containsString(q.Options, q.CorrectAnswer) {
			fields["correct_answer"] = "must match one of the options"
		}
	case models.QuestionTrueFalse:
		if q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
			fields["correct_answer"] = "must be true or false"
		}
	case models.QuestionShortAnswer, models.QuestionProblem:
		if q.CorrectAnswer == "" {
			fields["correct_answer"] = "is required"
		}
	}
	return fields
}

// NormalizeActivity trims text, applies the default due time and drops provenance
// fields that do not match the origin.
func NormalizeActivity(a *models.Activity) {
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	a.Instructions = strings.TrimSpace(a.Instructions)
	a.DueDate = strings.TrimSpace(a.DueDate)
	a.DueTime = strings.TrimSpace(a.DueTime)
	if a.DueTime == "" {
		a.DueTime = models.DefaultDueTime
	}
	if a.Origin == "" {
		a.Origin = models.OriginManual
	}
	if a.Origin != models.OriginAIGenerated {
		a.AIContext = nil
	}
	if a.Origin != models.OriginTemplate {
		a.TemplateID = nil
	}
}

// ValidateActivity normalises a and reports offending activity fields. Questions are
// optional; when present each one is checked and reported as questions[i].field.
func (v *ActivityValidator) ValidateActivity(a *models.Activity) error {
	NormalizeActivity(a)
	fields := v.structFields(a)

	if a.Type != "" && !a.Type.Valid() {
		fields["type"] = "must be one of assignment, quiz, project, exam"
	}
	if _, ok := fields["due_date"]; !ok {
		if _, err := time.Parse(models.DueDateLayout, a.DueDate); err != nil {
			fields["due_date"] = "must be a date formatted YYYY-MM-DD"
		}
	}
	if _, err := time.Parse(models.DueTimeLayout, a.DueTime); err != nil {
		fields["due_time"] = "must be a time formatted HH:MM"
	}

	for i := range a.Questions {
		for field, msg := range v.questionFields(&a.Questions[i]) {
			fields[fmt.Sprintf("questions[%d].%s", i, field)] = msg
		}
	}

	if len(fields) > 0 {
		return appErrors.NewValidationError(fields)
	}
	return nil
}

// ValidateStruct runs the struct tags of a request payload.
func (v *ActivityValidator) ValidateStruct(s interface{}) error {
	if fields := v.structFields(s); len(fields) > 0 {
		return appErrors.NewValidationError(fields)
	}
	return nil
}

func (v *ActivityValidator) structFields(s interface{}) map[string]string {
	fields := make(map[string]string)
	err := v.validate.Struct(s)
	if err == nil {
		return fields
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
