package service

import (
	"strings"
	"unicode"

	"github.com/noah-isme/edu-authoring-api/internal/models"
)

// ActivityClassifier infers the activity type from a free-text brief.
type ActivityClassifier interface {
	Classify(brief string) models.ActivityType
}

// ActivityClassifierFunc adapts a function to ActivityClassifier.
type ActivityClassifierFunc func(brief string) models.ActivityType

// Classify implements ActivityClassifier.
func (f ActivityClassifierFunc) Classify(brief string) models.ActivityType {
	return f(brief)
}

type keywordRule struct {
	activityType models.ActivityType
	keywords     []string
}

// KeywordClassifier matches brief words against ordered keyword lists. The first rule with a
// hit wins and briefs without any hit are assignments.
type KeywordClassifier struct {
	rules []keywordRule
}

// NewKeywordClassifier returns the default Portuguese/English keyword rules.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{rules: []keywordRule{
		{activityType: models.ActivityQuiz, keywords: []string{"quiz", "quizz", "questionário", "questionario"}},
		{activityType: models.ActivityProject, keywords: []string{"projeto", "projetos", "project", "projects", "grupo", "grupos", "group"}},
		{activityType: models.ActivityExam, keywords: []string{"prova", "provas", "avaliação", "avaliacao", "exam", "exame", "test"}},
	}}
}

// Classify implements ActivityClassifier.
func (c *KeywordClassifier) Classify(brief string) models.ActivityType {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(brief), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if _, ok := words[kw]; ok {
				return rule.activityType
			}
		}
	}
	return models.ActivityAssignment
}
