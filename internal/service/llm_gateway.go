package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

const (
	generationSystemPrompt = "You are a teaching assistant that drafts school activities. " +
		"Reply with a single JSON object and nothing else."
	gradingSystemPrompt = "You are a teaching assistant that grades student submissions. " +
		"Reply with a single JSON object and nothing else."
	maxErrorBodyBytes = 512
)

// LLMGatewayConfig configures the OpenAI-compatible backend.
type LLMGatewayConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
}

// LLMGateway implements ContentGateway over an OpenAI-compatible chat completions API.
type LLMGateway struct {
	cfg        LLMGatewayConfig
	client     *http.Client
	limiter    *rate.Limiter
	classifier ActivityClassifier
	validator  *ActivityValidator
	logger     *zap.Logger
}

// NewLLMGateway constructs the gateway. cfg.Timeout bounds each call.
func NewLLMGateway(cfg LLMGatewayConfig, client *http.Client, validator *ActivityValidator, logger *zap.Logger) *LLMGateway {
	if client == nil {
		client = &http.Client{}
	}
	if validator == nil {
		validator = NewActivityValidator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return &LLMGateway{
		cfg:        cfg,
		client:     client,
		limiter:    limiter,
		classifier: NewKeywordClassifier(),
		validator:  validator,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type llmActivityPayload struct {
	Title        string            `json:"title"`
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Instructions string            `json:"instructions"`
	MaxGrade     float64           `json:"max_grade"`
	Questions    []models.Question `json:"questions"`
}

type llmGradePayload struct {
	Grade      *float64 `json:"grade"`
	Confidence *float64 `json:"confidence"`
	Feedback   string   `json:"feedback"`
}

// GenerateContent implements ContentGateway.
func (g *LLMGateway) GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error) {
	brief, opts, err := normalizeGenerationRequest(brief, kind, opts)
	if err != nil {
		return nil, err
	}

	content, err := g.complete(ctx, generationSystemPrompt, generationPrompt(brief, kind, opts))
	if err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGenerationFailure, err, "content generation failed")
	}

	var payload llmActivityPayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &payload); err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGenerationFailure, err, "content service returned malformed JSON")
	}

	questions, err := g.acceptQuestions(payload.Questions, opts)
	if err != nil {
		return nil, err
	}

	if kind == models.GenerateQuestions {
		return &models.Draft{Kind: kind, Questions: questions}, nil
	}

	// The activity type always comes from the brief, never from the model.
	activityType := g.classifier.Classify(brief)
	maxGrade := payload.MaxGrade
	if opts.MaxGrade > 0 {
		maxGrade = opts.MaxGrade
	}
	if maxGrade < 1 || maxGrade > 100 {
		maxGrade = defaultDraftMaxGrade
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrGenerationFailure, "content service omitted title or description")
	}
	aiContext := brief
	return &models.Draft{Kind: kind, Activity: &models.Activity{
		Title:        strings.TrimSpace(payload.Title),
		Type:         activityType,
		Description:  strings.TrimSpace(payload.Description),
		Instructions: strings.TrimSpace(payload.Instructions),
		MaxGrade:     maxGrade,
		Questions:    questions,
		Origin:       models.OriginAIGenerated,
		AIContext:    &aiContext,
	}}, nil
}

// acceptQuestions assigns ids, validates every model-produced question and enforces the requested count.
func (g *LLMGateway) acceptQuestions(raw []models.Question, opts models.GenerationOptions) (models.Questions, error) {
	if opts.Count > 0 {
		if len(raw) < opts.Count {
			return nil, appErrors.Clone(appErrors.ErrGenerationFailure,
				fmt.Sprintf("content service returned %d questions, %d requested", len(raw), opts.Count))
		}
		raw = raw[:opts.Count]
	}
	questions := make(models.Questions, 0, len(raw))
	for i := range raw {
		q := raw[i]
		q.ID = uuid.NewString()
		if q.Difficulty == "" {
			q.Difficulty = opts.Difficulty
		}
		if err := g.validator.ValidateQuestion(&q); err != nil {
			return nil, appErrors.WrapClone(appErrors.ErrGenerationFailure, err,
				fmt.Sprintf("content service returned an invalid question at position %d", i))
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// GradeSubmission implements ContentGateway.
func (g *LLMGateway) GradeSubmission(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.GradeProposal, error) {
	if err := checkAnswerCoverage(activity, submission); err != nil {
		return nil, err
	}

	content, err := g.complete(ctx, gradingSystemPrompt, gradingPrompt(activity, submission))
	if err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGradingFailure, err, "grading failed")
	}

	var payload llmGradePayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &payload); err != nil {
		return nil, appErrors.WrapClone(appErrors.ErrGradingFailure, err, "grading service returned malformed JSON")
	}
	if payload.Grade == nil || payload.Confidence == nil {
		return nil, appErrors.Clone(appErrors.ErrGradingFailure, "grading service omitted grade or confidence")
	}
	if *payload.Grade < 0 || *payload.Grade > activity.MaxGrade {
		return nil, appErrors.Clone(appErrors.ErrGradingFailure,
			fmt.Sprintf("grading service proposed %.2f outside 0..%.2f", *payload.Grade, activity.MaxGrade))
	}
	if *payload.Confidence < 0 || *payload.Confidence > 100 {
		return nil, appErrors.Clone(appErrors.ErrGradingFailure, "grading service returned confidence outside 0..100")
	}
	return &models.GradeProposal{
		Grade:      round2(*payload.Grade),
		Confidence: round2(*payload.Confidence),
		Feedback:   strings.TrimSpace(payload.Feedback),
	}, nil
}

func (g *LLMGateway) complete(ctx context.Context, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	g.logger.Debug("chat completion finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return "", fmt.Errorf("chat API status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat API returned no content")
	}
	return parsed.Choices[0].Message.Content, nil
}

func generationPrompt(brief string, kind models.GenerationKind, opts models.GenerationOptions) string {
	var b strings.Builder
	b.WriteString("Teacher brief: ")
	b.WriteString(brief)
	b.WriteString("\n")
	if kind == models.GenerateActivity {
		b.WriteString(`Return {"title","type","description","instructions","max_grade","questions"}. `)
		b.WriteString("type is one of assignment, quiz, project, exam.\n")
	} else {
		b.WriteString(`Return {"questions"}.` + "\n")
	}
	b.WriteString(`Each question is {"type","prompt","options","correct_answer","points","difficulty"}. `)
	b.WriteString("Question types: multiple_choice (2+ options, correct_answer copied from options), ")
	b.WriteString("true_false (correct_answer true or false), short_answer, problem, essay (no correct_answer).\n")
	if len(opts.QuestionTypes) > 0 {
		types := make([]string, len(opts.QuestionTypes))
		for i, qt := range opts.QuestionTypes {
			types[i] = string(qt)
		}
		fmt.Fprintf(&b, "Use only these question types, in rotation: %s.\n", strings.Join(types, ", "))
	}
	fmt.Fprintf(&b, "Difficulty: %s.\n", opts.Difficulty)
	if opts.Count > 0 {
		fmt.Fprintf(&b, "Produce exactly %d questions.\n", opts.Count)
	}
	if opts.MaxGrade > 0 {
		fmt.Fprintf(&b, "Points must add up to %.2f.\n", opts.MaxGrade)
	}
	return b.String()
}

func gradingPrompt(activity *models.Activity, submission *models.Submission) string {
	answers := submission.Answers.ByQuestion()
	var b strings.Builder
	fmt.Fprintf(&b, "Activity: %s (%s). Maximum grade %.2f.\n", activity.Title, activity.Type, activity.MaxGrade)
	if activity.Instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", activity.Instructions)
	}
	for i, q := range activity.Questions {
		fmt.Fprintf(&b, "%d. [%s, %.2f points] %s\n", i+1, q.Type, q.Points, q.Prompt)
		if q.CorrectAnswer != "" {
			fmt.Fprintf(&b, "   Expected: %s\n", q.CorrectAnswer)
		}
		fmt.Fprintf(&b, "   Student answer: %s\n", answers[q.ID])
	}
	b.WriteString(`Return {"grade","confidence","feedback"} where grade is between 0 and the maximum grade `)
	b.WriteString("and confidence is your certainty from 0 to 100.\n")
	return b.String()
}

// stripCodeFence removes a surrounding markdown code fence some models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
