package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

const (
	heuristicConfidenceCeiling = 95.0
	fuzzyMatchPenalty          = 10.0
	defaultDraftMaxGrade       = 10.0
)

var defaultQuestionMix = map[models.ActivityType][]models.QuestionType{
	models.ActivityQuiz:       {models.QuestionMultipleChoice, models.QuestionTrueFalse},
	models.ActivityExam:       {models.QuestionMultipleChoice, models.QuestionTrueFalse, models.QuestionShortAnswer, models.QuestionEssay},
	models.ActivityAssignment: {models.QuestionShortAnswer, models.QuestionProblem},
	models.ActivityProject:    {models.QuestionEssay},
}

var defaultQuestionCount = map[models.ActivityType]int{
	models.ActivityQuiz:       5,
	models.ActivityExam:       10,
	models.ActivityAssignment: 3,
	models.ActivityProject:    1,
}

var activityInstructions = map[models.ActivityType]string{
	models.ActivityQuiz:       "Answer every question. Each question has a single correct answer.",
	models.ActivityExam:       "Work individually. Show your reasoning on open questions.",
	models.ActivityAssignment: "Solve each item and explain the steps you used.",
	models.ActivityProject:    "Work in groups. Deliver a written report and a short presentation.",
}

// HeuristicGatewayOption configures the local gateway.
type HeuristicGatewayOption func(*HeuristicGateway)

// WithClassifier swaps the activity type classifier.
func WithClassifier(c ActivityClassifier) HeuristicGatewayOption {
	return func(g *HeuristicGateway) {
		if c != nil {
			g.classifier = c
		}
	}
}

// WithLatency makes every call wait before answering, mirroring a remote service.
func WithLatency(d time.Duration) HeuristicGatewayOption {
	return func(g *HeuristicGateway) { g.latency = d }
}

// WithMaxEditDistance sets the Levenshtein distance accepted as a close match.
func WithMaxEditDistance(n int) HeuristicGatewayOption {
	return func(g *HeuristicGateway) {
		if n >= 0 {
			g.maxEdit = n
		}
	}
}

// HeuristicGateway is the local ContentGateway: keyword classification, deterministic
// question drafts, and per-type grading strategies.
type HeuristicGateway struct {
	classifier ActivityClassifier
	strategies map[models.QuestionType]gradingStrategy
	maxEdit    int
	latency    time.Duration
	logger     *zap.Logger
}

// NewHeuristicGateway constructs the gateway.
func NewHeuristicGateway(logger *zap.Logger, opts ...HeuristicGatewayOption) *HeuristicGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &HeuristicGateway{
		classifier: NewKeywordClassifier(),
		maxEdit:    2,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	g.strategies = map[models.QuestionType]gradingStrategy{
		models.QuestionMultipleChoice: exactStrategy{},
		models.QuestionTrueFalse:      exactStrategy{},
		models.QuestionShortAnswer:    fuzzyStrategy{maxEdit: g.maxEdit},
		models.QuestionProblem:        fuzzyStrategy{maxEdit: g.maxEdit},
		models.QuestionEssay:          manualStrategy{},
	}
	return g
}

// GenerateContent implements ContentGateway.
func (g *HeuristicGateway) GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error) {
	brief, opts, err := normalizeGenerationRequest(brief, kind, opts)
	if err != nil {
		return nil, err
	}
	if err := g.wait(ctx); err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGenerationFailure, err, "content generation interrupted")
	}

	topic := topicFromBrief(brief)
	if topic == "" {
		topic = brief
	}

	switch kind {
	case models.GenerateQuestions:
		questions := g.draftQuestions(topic, opts.QuestionTypes, opts.Count, opts.Difficulty, pointsPerQuestion(opts.MaxGrade, opts.Count))
		return &models.Draft{Kind: kind, Questions: questions}, nil
	default:
		activityType := g.classifier.Classify(brief)
		count := opts.Count
		if count == 0 {
			count = defaultQuestionCount[activityType]
		}
		types := opts.QuestionTypes
		if len(types) == 0 {
			types = defaultQuestionMix[activityType]
		}
		maxGrade := opts.MaxGrade
		if maxGrade == 0 {
			maxGrade = defaultDraftMaxGrade
		}
		aiContext := brief
		activity := &models.Activity{
			Title:        draftTitle(activityType, topic),
			Type:         activityType,
			Description:  fmt.Sprintf("%s about %s.", activityLabel(activityType), topic),
			Instructions: activityInstructions[activityType],
			MaxGrade:     maxGrade,
			Questions:    g.draftQuestions(topic, types, count, opts.Difficulty, pointsPerQuestion(maxGrade, count)),
			Origin:       models.OriginAIGenerated,
			AIContext:    &aiContext,
		}
		g.logger.Debug("heuristic draft generated",
			zap.String("type", string(activityType)),
			zap.Int("questions", len(activity.Questions)),
		)
		return &models.Draft{Kind: kind, Activity: activity}, nil
	}
}

func (g *HeuristicGateway) draftQuestions(topic string, types []models.QuestionType, count int, difficulty models.Difficulty, points float64) models.Questions {
	questions := make(models.Questions, 0, count)
	for i := 0; i < count; i++ {
		qt := types[i%len(types)]
		n := i + 1
		q := models.Question{
			ID:         uuid.NewString(),
			Type:       qt,
			Points:     points,
			Difficulty: difficulty,
		}
		switch qt {
		case models.QuestionMultipleChoice:
			q.Prompt = fmt.Sprintf("Question %d: which statement about %s is correct?", n, topic)
			q.Options = []string{"Statement A", "Statement B", "Statement C", "Statement D"}
			q.CorrectAnswer = q.Options[i%len(q.Options)]
		case models.QuestionTrueFalse:
			q.Prompt = fmt.Sprintf("Question %d: true or false, the key idea %d of %s holds in every case.", n, n, topic)
			q.CorrectAnswer = []string{"true", "false"}[i%2]
		case models.QuestionShortAnswer:
			q.Prompt = fmt.Sprintf("Question %d: name the central concept %d of %s.", n, n, topic)
			q.CorrectAnswer = fmt.Sprintf("concept %d", n)
		case models.QuestionProblem:
			q.Prompt = fmt.Sprintf("Question %d: solve problem %d about %s and give the final result.", n, n, topic)
			q.CorrectAnswer = fmt.Sprintf("%d", n*n)
		case models.QuestionEssay:
			q.Prompt = fmt.Sprintf("Question %d: write a short essay discussing %s.", n, topic)
		}
		questions = append(questions, q)
	}
	return questions
}

// GradeSubmission implements ContentGateway.
func (g *HeuristicGateway) GradeSubmission(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.GradeProposal, error) {
	if err := checkAnswerCoverage(activity, submission); err != nil {
		return nil, err
	}
	if err := g.wait(ctx); err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGradingFailure, err, "grading interrupted")
	}

	total := activity.Questions.TotalPoints()
	if len(activity.Questions) == 0 || total <= 0 {
		return &models.GradeProposal{
			Grade:      0,
			Confidence: 0,
			Feedback:   "No gradable questions; the teacher must grade this submission.",
		}, nil
	}

	answers := submission.Answers.ByQuestion()
	var earned, autoPoints float64
	var correct, closeMatches, manual, autoCount int
	for _, q := range activity.Questions {
		strategy, ok := g.strategies[q.Type]
		if !ok {
			strategy = manualStrategy{}
		}
		res := strategy.grade(q, answers[q.ID])
		earned += res.points
		if res.needsManual {
			manual++
			continue
		}
		autoCount++
		autoPoints += q.Points
		switch {
		case res.fuzzy:
			closeMatches++
		case res.points >= q.Points:
			correct++
		}
	}

	confidence := heuristicConfidenceCeiling*(autoPoints/total) - fuzzyMatchPenalty*float64(closeMatches)
	confidence = math.Max(0, round2(confidence))
	grade := round2(earned / total * activity.MaxGrade)

	parts := []string{fmt.Sprintf("%d of %d auto-graded questions correct", correct, autoCount)}
	if closeMatches > 0 {
		parts = append(parts, fmt.Sprintf("%d close matches given half credit", closeMatches))
	}
	if manual > 0 {
		parts = append(parts, fmt.Sprintf("%d open answers need teacher review", manual))
	}

	return &models.GradeProposal{
		Grade:      grade,
		Confidence: confidence,
		Feedback:   strings.Join(parts, "; ") + ".",
	}, nil
}

func (g *HeuristicGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func activityLabel(t models.ActivityType) string {
	return capitalize(string(t))
}

func draftTitle(t models.ActivityType, topic string) string {
	return activityLabel(t) + ": " + capitalize(topic)
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func pointsPerQuestion(maxGrade float64, count int) float64 {
	if maxGrade <= 0 {
		maxGrade = defaultDraftMaxGrade
	}
	if count <= 0 {
		return 1
	}
	return math.Max(0.01, round2(maxGrade/float64(count)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// grading strategies

type strategyResult struct {
	points      float64
	fuzzy       bool
	needsManual bool
}

type gradingStrategy interface {
	grade(q models.Question, answer string) strategyResult
}

type exactStrategy struct{}

func (exactStrategy) grade(q models.Question, answer string) strategyResult {
	answer = strings.TrimSpace(answer)
	key := q.CorrectAnswer
	if q.Type == models.QuestionTrueFalse {
		if canonical, ok := trueFalseAliases[strings.ToLower(answer)]; ok {
			answer = canonical
		}
	}
	if answer == key {
		return strategyResult{points: q.Points}
	}
	return strategyResult{}
}

type fuzzyStrategy struct{ maxEdit int }

func (s fuzzyStrategy) grade(q models.Question, answer string) strategyResult {
	got, want := normalizeAnswer(answer), normalizeAnswer(q.CorrectAnswer)
	if got == "" {
		return strategyResult{}
	}
	if got == want {
		return strategyResult{points: q.Points}
	}
	if s.maxEdit > 0 && levenshtein(got, want) <= s.maxEdit {
		return strategyResult{points: q.Points / 2, fuzzy: true}
	}
	return strategyResult{}
}

type manualStrategy struct{}

func (manualStrategy) grade(models.Question, string) strategyResult {
	return strategyResult{needsManual: true}
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
