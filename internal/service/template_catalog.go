package service

import (
	"sort"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

// TemplateCatalog serves the static activity templates offered by the wizard.
type TemplateCatalog struct {
	templates map[string]models.ActivityTemplate
}

// NewTemplateCatalog builds a catalog from the given templates, or the built-in set when none are passed.
func NewTemplateCatalog(templates ...models.ActivityTemplate) *TemplateCatalog {
	if len(templates) == 0 {
		templates = defaultTemplates()
	}
	catalog := &TemplateCatalog{templates: make(map[string]models.ActivityTemplate, len(templates))}
	for _, tpl := range templates {
		catalog.templates[tpl.ID] = tpl
	}
	return catalog
}

// List returns every template ordered by id.
func (c *TemplateCatalog) List() []models.ActivityTemplate {
	out := make([]models.ActivityTemplate, 0, len(c.templates))
	for _, tpl := range c.templates {
		tpl.Questions = tpl.Questions.Clone()
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of the template so callers may edit its questions.
func (c *TemplateCatalog) Get(id string) (*models.ActivityTemplate, error) {
	tpl, ok := c.templates[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
	}
	tpl.Questions = tpl.Questions.Clone()
	return &tpl, nil
}

func defaultTemplates() []models.ActivityTemplate {
	return []models.ActivityTemplate{
		{
			ID:           "quiz-review",
			Name:         "Quick review quiz",
			Type:         models.ActivityQuiz,
			Title:        "Review quiz",
			Description:  "Short quiz to check the key ideas of the last lessons.",
			Instructions: "Answer every question. Multiple choice items have exactly one correct option.",
			MaxGrade:     10,
			Questions: models.Questions{
				{
					ID:            "tpl-quiz-1",
					Type:          models.QuestionMultipleChoice,
					Prompt:        "Which option best summarises the main idea of the lesson?",
					Options:       []string{"Option A", "Option B", "Option C", "Option D"},
					CorrectAnswer: "Option A",
					Points:        4,
					Difficulty:    models.DifficultyEasy,
				},
				{
					ID:            "tpl-quiz-2",
					Type:          models.QuestionTrueFalse,
					Prompt:        "The statement discussed in class is correct.",
					CorrectAnswer: "true",
					Points:        3,
					Difficulty:    models.DifficultyEasy,
				},
				{
					ID:            "tpl-quiz-3",
					Type:          models.QuestionShortAnswer,
					Prompt:        "Name the key term introduced in the lesson.",
					CorrectAnswer: "term",
					Points:        3,
					Difficulty:    models.DifficultyMedium,
				},
			},
		},
		{
			ID:           "essay-argumentative",
			Name:         "Argumentative essay",
			Type:         models.ActivityAssignment,
			Title:        "Argumentative essay",
			Description:  "Write an essay defending a position on the proposed theme.",
			Instructions: "Between 20 and 30 lines. Present a thesis, two arguments and a conclusion.",
			MaxGrade:     10,
			Questions: models.Questions{
				{
					ID:         "tpl-essay-1",
					Type:       models.QuestionEssay,
					Prompt:     "Develop your argument about the proposed theme.",
					Points:     10,
					Difficulty: models.DifficultyMedium,
				},
			},
		},
		{
			ID:           "group-project",
			Name:         "Group project",
			Type:         models.ActivityProject,
			Title:        "Group research project",
			Description:  "Research a topic in groups and present the findings.",
			Instructions: "Groups of up to four students. Deliver a written report and a short presentation.",
			MaxGrade:     100,
		},
		{
			ID:           "exam-term",
			Name:         "Term exam",
			Type:         models.ActivityExam,
			Title:        "Term exam",
			Description:  "Individual exam covering the term content.",
			Instructions: "No consultation allowed. Show your reasoning on problem questions.",
			MaxGrade:     10,
			Questions: models.Questions{
				{
					ID:            "tpl-exam-1",
					Type:          models.QuestionMultipleChoice,
					Prompt:        "Select the correct definition.",
					Options:       []string{"Definition 1", "Definition 2", "Definition 3"},
					CorrectAnswer: "Definition 2",
					Points:        3,
					Difficulty:    models.DifficultyMedium,
				},
				{
					ID:            "tpl-exam-2",
					Type:          models.QuestionProblem,
					Prompt:        "Solve the problem and give the final result.",
					CorrectAnswer: "42",
					Points:        4,
					Difficulty:    models.DifficultyHard,
				},
				{
					ID:         "tpl-exam-3",
					Type:       models.QuestionEssay,
					Prompt:     "Explain the concept in your own words.",
					Points:     3,
					Difficulty: models.DifficultyMedium,
				},
			},
		},
	}
}
