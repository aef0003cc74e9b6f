package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

// ContentGateway drafts activity content and proposes grades. Implementations return
// ErrGenerationFailure or ErrGradingFailure when the backend cannot answer and never
// substitute placeholder content for a failed call.
type ContentGateway interface {
	GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error)
	GradeSubmission(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.GradeProposal, error)
}

var briefCountPattern = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(quest(?:ões|oes|ão|ao|ions?)|perguntas?|items?|exerc[íi]cios?)\b`)

// CountFromBrief extracts an explicit question count such as "5 questões" or "10 questions".
func CountFromBrief(brief string) (int, bool) {
	match := briefCountPattern.FindStringSubmatch(brief)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > models.MaxQuestionCount {
		n = models.MaxQuestionCount
	}
	return n, true
}

// topicFromBrief strips the count phrase and leading type keywords to get a short subject line.
func topicFromBrief(brief string) string {
	topic := briefCountPattern.ReplaceAllString(brief, "")
	topic = strings.Join(strings.Fields(topic), " ")
	topic = strings.TrimRight(topic, " ,.;:-")
	for _, suffix := range []string{" com", " with"} {
		topic = strings.TrimSuffix(topic, suffix)
	}
	runes := []rune(topic)
	if len(runes) > 80 {
		topic = strings.TrimSpace(string(runes[:80]))
	}
	return topic
}

// normalizeGenerationRequest checks the caller input shared by every gateway and fills defaults.
func normalizeGenerationRequest(brief string, kind models.GenerationKind, opts models.GenerationOptions) (string, models.GenerationOptions, error) {
	fields := make(map[string]string)
	brief = strings.TrimSpace(brief)
	if brief == "" {
		fields["brief"] = "is required"
	}
	if !kind.Valid() {
		fields["kind"] = "must be activity or questions"
	}
	if kind == models.GenerateQuestions && len(opts.QuestionTypes) == 0 {
		fields["question_types"] = "at least one question type is required"
	}
	for _, qt := range opts.QuestionTypes {
		if !qt.Valid() {
			fields["question_types"] = "unknown question type " + string(qt)
			break
		}
	}
	if opts.Difficulty != "" && !opts.Difficulty.Valid() {
		fields["difficulty"] = "must be one of easy, medium, hard"
	}
	if opts.Count < 0 {
		fields["count"] = "must not be negative"
	}
	if opts.MaxGrade != 0 && (opts.MaxGrade < 1 || opts.MaxGrade > 100) {
		fields["max_grade"] = "must be between 1 and 100"
	}
	if len(fields) > 0 {
		return "", opts, appErrors.NewValidationError(fields)
	}

	if opts.Difficulty == "" {
		opts.Difficulty = models.DifficultyMedium
	}
	if opts.Count > models.MaxQuestionCount {
		opts.Count = models.MaxQuestionCount
	}
	if opts.Count == 0 {
		if n, ok := CountFromBrief(brief); ok {
			opts.Count = n
		}
	}
	if opts.Count == 0 && kind == models.GenerateQuestions {
		opts.Count = models.DefaultQuestionCount
	}
	return brief, opts, nil
}

// checkAnswerCoverage ensures every auto-gradable question has an answer before grading.
func checkAnswerCoverage(activity *models.Activity, submission *models.Submission) error {
	if activity == nil || submission == nil {
		return appErrors.Clone(appErrors.ErrValidation, "activity and submission are required")
	}
	answers := submission.Answers.ByQuestion()
	fields := make(map[string]string)
	for i, q := range activity.Questions {
		if !q.Type.AutoGradable() {
			continue
		}
		if strings.TrimSpace(answers[q.ID]) == "" {
			fields["answers["+strconv.Itoa(i)+"]"] = "missing answer for question " + q.ID
		}
	}
	if len(fields) > 0 {
		return appErrors.NewValidationError(fields)
	}
	return nil
}
