package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

func chatServer(t *testing.T, status int, content string) (*httptest.Server, *chatCompletionRequest) {
	t.Helper()
	captured := &chatCompletionRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestLLMGateway(url string) *LLMGateway {
	return NewLLMGateway(LLMGatewayConfig{BaseURL: url + "/", APIKey: "secret", Model: "test-model"}, nil, nil, nil)
}

func TestLLMGatewayGeneratesActivity(t *testing.T) {
	content := "```json\n" + `{"title":"Brasil Colônia","type":"quiz","description":"Revisão","instructions":"Responda","max_grade":10,
"questions":[{"type":"multiple_choice","prompt":"Capital?","options":["Salvador","Recife"],"correct_answer":"Salvador","points":5,"difficulty":"easy"},
{"type":"true_false","prompt":"Ciclo do açúcar?","correct_answer":"Verdadeiro","points":5}]}` + "\n```"
	srv, captured := chatServer(t, http.StatusOK, content)
	gw := newTestLLMGateway(srv.URL)

	draft, err := gw.GenerateContent(context.Background(), "Quiz sobre o Brasil colonial com 2 questões", models.GenerateActivity, models.GenerationOptions{})
	require.NoError(t, err)

	assert.Equal(t, "test-model", captured.Model)
	assert.Contains(t, captured.Messages[1].Content, "Produce exactly 2 questions")
	require.NotNil(t, draft.Activity)
	assert.Equal(t, models.ActivityQuiz, draft.Activity.Type)
	require.Len(t, draft.Activity.Questions, 2)
	assert.NotEmpty(t, draft.Activity.Questions[0].ID)
	assert.Equal(t, "true", draft.Activity.Questions[1].CorrectAnswer)
	assert.Equal(t, models.DifficultyMedium, draft.Activity.Questions[1].Difficulty)
}

func TestLLMGatewayTypeComesFromBrief(t *testing.T) {
	content := `{"title":"Brasil Colônia","type":"assignment","description":"Revisão","instructions":"Responda","max_grade":10,
"questions":[{"type":"true_false","prompt":"Ciclo do açúcar?","correct_answer":"true","points":10,"difficulty":"easy"}]}`
	srv, _ := chatServer(t, http.StatusOK, content)
	gw := newTestLLMGateway(srv.URL)

	draft, err := gw.GenerateContent(context.Background(), "Quiz sobre história do Brasil colonial", models.GenerateActivity, models.GenerationOptions{})
	require.NoError(t, err)
	require.NotNil(t, draft.Activity)
	assert.Equal(t, models.ActivityQuiz, draft.Activity.Type)
}

func TestLLMGatewayRejectsInvalidQuestions(t *testing.T) {
	content := `{"questions":[{"type":"multiple_choice","prompt":"?","options":["a","b"],"correct_answer":"c","points":1,"difficulty":"easy"}]}`
	srv, _ := chatServer(t, http.StatusOK, content)
	gw := newTestLLMGateway(srv.URL)

	_, err := gw.GenerateContent(context.Background(), "frações", models.GenerateQuestions, models.GenerationOptions{
		QuestionTypes: []models.QuestionType{models.QuestionMultipleChoice},
		Count:         1,
	})
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailure))
}

func TestLLMGatewayUpstreamErrorIsGenerationFailure(t *testing.T) {
	srv, _ := chatServer(t, http.StatusServiceUnavailable, "")
	gw := newTestLLMGateway(srv.URL)

	_, err := gw.GenerateContent(context.Background(), "quiz", models.GenerateActivity, models.GenerationOptions{})
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailure))
}

func TestLLMGatewayGradesSubmission(t *testing.T) {
	srv, captured := chatServer(t, http.StatusOK, `{"grade":8.5,"confidence":82,"feedback":"Bom trabalho"}`)
	gw := newTestLLMGateway(srv.URL)
	activity := gradingActivity()
	submission := &models.Submission{Answers: models.Answers{
		{QuestionID: "mc", AnswerText: "1822"},
		{QuestionID: "tf", AnswerText: "true"},
		{QuestionID: "sa", AnswerText: "photosynthesis"},
	}}

	proposal, err := gw.GradeSubmission(context.Background(), activity, submission)
	require.NoError(t, err)
	assert.Equal(t, 8.5, proposal.Grade)
	assert.Equal(t, 82.0, proposal.Confidence)
	assert.Contains(t, captured.Messages[1].Content, "Student answer: 1822")
}

func TestLLMGatewayRejectsOutOfRangeGrade(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"grade":12,"confidence":90,"feedback":""}`)
	gw := newTestLLMGateway(srv.URL)
	activity := &models.Activity{MaxGrade: 10}

	_, err := gw.GradeSubmission(context.Background(), activity, &models.Submission{})
	assert.True(t, errors.Is(err, appErrors.ErrGradingFailure))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(` {"a":1} `))
}
