package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	return appErr.FieldNames()
}

func validActivity() *models.Activity {
	return &models.Activity{
		Title:       "Frações",
		Type:        models.ActivityAssignment,
		Description: "Lista de exercícios",
		DueDate:     "2026-11-20",
		MaxGrade:    10,
	}
}

func TestValidateQuestionTrueFalseNeedsNoOptions(t *testing.T) {
	v := NewActivityValidator(nil)
	q := &models.Question{Type: models.QuestionTrueFalse, Prompt: "A Terra é redonda?", CorrectAnswer: "true", Points: 1, Difficulty: models.DifficultyEasy}

	require.NoError(t, v.ValidateQuestion(q))
	assert.Nil(t, q.Options)
}

func TestValidateQuestionNormalisesTrueFalseAliases(t *testing.T) {
	v := NewActivityValidator(nil)
	q := &models.Question{Type: models.QuestionTrueFalse, Prompt: "?", CorrectAnswer: "Verdadeiro", Points: 1, Difficulty: models.DifficultyEasy}

	require.NoError(t, v.ValidateQuestion(q))
	assert.Equal(t, "true", q.CorrectAnswer)

	q.CorrectAnswer = "maybe"
	assert.Equal(t, []string{"correct_answer"}, validationFields(t, v.ValidateQuestion(q)))
}

func TestValidateQuestionMultipleChoiceInvariant(t *testing.T) {
	v := NewActivityValidator(nil)
	cases := []struct {
		name    string
		options []string
		answer  string
		fields  []string
	}{
		{name: "valid", options: []string{"1500", "1822"}, answer: "1822"},
		{name: "single option", options: []string{"1822"}, answer: "1822", fields: []string{"options"}},
		{name: "answer not an option", options: []string{"1500", "1822"}, answer: "1889", fields: []string{"correct_answer"}},
		{name: "blank options dropped", options: []string{"1822", "  "}, answer: "1822", fields: []string{"options"}},
		{name: "missing answer", options: []string{"a", "b"}, fields: []string{"correct_answer"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &models.Question{Type: models.QuestionMultipleChoice, Prompt: "Independência?", Options: tc.options, CorrectAnswer: tc.answer, Points: 2, Difficulty: models.DifficultyMedium}
			err := v.ValidateQuestion(q)
			if tc.fields == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.fields, validationFields(t, err))
		})
	}
}

func TestValidateQuestionReportsEveryField(t *testing.T) {
	v := NewActivityValidator(nil)
	q := &models.Question{Type: models.QuestionShortAnswer, Prompt: "   ", Points: 0}

	fields := validationFields(t, v.ValidateQuestion(q))
	assert.ElementsMatch(t, []string{"prompt", "points", "difficulty", "correct_answer"}, fields)
}

func TestValidateQuestionEssayClearsAnswer(t *testing.T) {
	v := NewActivityValidator(nil)
	q := &models.Question{Type: models.QuestionEssay, Prompt: "Discuta", CorrectAnswer: "anything", Options: []string{"x"}, Points: 5, Difficulty: models.DifficultyHard}

	require.NoError(t, v.ValidateQuestion(q))
	assert.Empty(t, q.CorrectAnswer)
	assert.Nil(t, q.Options)
}

func TestValidateQuestionUnknownType(t *testing.T) {
	v := NewActivityValidator(nil)
	q := &models.Question{Type: "poll", Prompt: "?", Points: 1, Difficulty: models.DifficultyEasy}

	assert.Equal(t, []string{"type"}, validationFields(t, v.ValidateQuestion(q)))
}

func TestValidateActivityAcceptsEmptyQuestions(t *testing.T) {
	v := NewActivityValidator(nil)
	a := validActivity()

	require.NoError(t, v.ValidateActivity(a))
	assert.Equal(t, models.DefaultDueTime, a.DueTime)
	assert.Equal(t, models.OriginManual, a.Origin)
}

func TestValidateActivityReportsFields(t *testing.T) {
	v := NewActivityValidator(nil)
	a := &models.Activity{Type: "homework", DueDate: "20/11/2026", DueTime: "25:00", MaxGrade: 150}

	fields := validationFields(t, v.ValidateActivity(a))
	assert.ElementsMatch(t, []string{"title", "description", "type", "due_date", "due_time", "max_grade"}, fields)
}

func TestValidateActivityPrefixesQuestionFields(t *testing.T) {
	v := NewActivityValidator(nil)
	a := validActivity()
	a.Questions = models.Questions{
		{ID: "q1", Type: models.QuestionTrueFalse, Prompt: "ok", CorrectAnswer: "false", Points: 1, Difficulty: models.DifficultyEasy},
		{ID: "q2", Type: models.QuestionMultipleChoice, Prompt: "bad", Options: []string{"a"}, CorrectAnswer: "a", Points: 1, Difficulty: models.DifficultyEasy},
	}

	assert.Equal(t, []string{"questions[1].options"}, validationFields(t, v.ValidateActivity(a)))
}

func TestNormalizeActivityDropsMismatchedProvenance(t *testing.T) {
	brief, tpl := "brief", "tpl-1"
	a := validActivity()
	a.Origin = models.OriginTemplate
	a.AIContext = &brief
	a.TemplateID = &tpl

	NormalizeActivity(a)

	assert.Nil(t, a.AIContext)
	require.NotNil(t, a.TemplateID)
}
