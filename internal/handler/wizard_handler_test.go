package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/middleware"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/service"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type wizardServiceMock struct {
	session     *models.WizardSession
	err         error
	lastTeacher string
	lastClass   string
	lastOpts    models.GenerationOptions
	lastReplace bool
	lastPatch   dto.DraftPatch
	calls       []string
}

func (m *wizardServiceMock) record(op, teacherID string) (*models.WizardSession, error) {
	m.calls = append(m.calls, op)
	m.lastTeacher = teacherID
	return m.session, m.err
}

func (m *wizardServiceMock) StartSession(ctx context.Context, teacherID string) (*models.WizardSession, error) {
	return m.record("start", teacherID)
}

func (m *wizardServiceMock) GetSession(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return m.record("get", teacherID)
}

func (m *wizardServiceMock) SelectClass(ctx context.Context, id, teacherID, classID string) (*models.WizardSession, error) {
	m.lastClass = classID
	return m.record("class", teacherID)
}

func (m *wizardServiceMock) SelectMode(ctx context.Context, id, teacherID string, mode models.WizardMode) (*models.WizardSession, error) {
	return m.record("mode", teacherID)
}

func (m *wizardServiceMock) ApplyTemplate(ctx context.Context, id, teacherID, templateID string) (*models.WizardSession, error) {
	return m.record("template", teacherID)
}

func (m *wizardServiceMock) GenerateActivity(ctx context.Context, id, teacherID, brief string) (*models.WizardSession, error) {
	return m.record("generate", teacherID)
}

func (m *wizardServiceMock) GenerateQuestions(ctx context.Context, id, teacherID, brief string, opts models.GenerationOptions, replace bool) (*models.WizardSession, error) {
	m.lastOpts = opts
	m.lastReplace = replace
	return m.record("questions", teacherID)
}

func (m *wizardServiceMock) CancelGeneration(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return m.record("cancel-generation", teacherID)
}

func (m *wizardServiceMock) UpdateDraft(ctx context.Context, id, teacherID string, patch dto.DraftPatch) (*models.WizardSession, error) {
	m.lastPatch = patch
	return m.record("draft", teacherID)
}

func (m *wizardServiceMock) AddQuestion(ctx context.Context, id, teacherID string, question models.Question) (*models.WizardSession, error) {
	return m.record("add-question", teacherID)
}

func (m *wizardServiceMock) UpdateQuestion(ctx context.Context, id, teacherID, questionID string, patch dto.QuestionPatch) (*models.WizardSession, error) {
	return m.record("update-question", teacherID)
}

func (m *wizardServiceMock) RemoveQuestion(ctx context.Context, id, teacherID, questionID string) (*models.WizardSession, error) {
	return m.record("remove-question", teacherID)
}

func (m *wizardServiceMock) Review(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return m.record("review", teacherID)
}

func (m *wizardServiceMock) Submit(ctx context.Context, id, teacherID string) (*dto.SubmitWizardResponse, error) {
	m.calls = append(m.calls, "submit")
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SubmitWizardResponse{State: models.WizardClassSelection, ActivityID: "act-1", Session: m.session}, nil
}

func (m *wizardServiceMock) Cancel(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return m.record("cancel", teacherID)
}

func newTestContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher, FullName: "Prof. Lima"}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *appErrors.Error {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error
}

func TestWizardHandlerStartUsesCaller(t *testing.T) {
	mockSvc := &wizardServiceMock{session: &models.WizardSession{ID: "s1", State: models.WizardClassSelection}}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodPost, "/wizard/sessions", "", teacherClaims())
	h.Start(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "teacher-1", mockSvc.lastTeacher)
	assert.Contains(t, w.Body.String(), `"id":"s1"`)
}

func TestWizardHandlerRequiresClaims(t *testing.T) {
	mockSvc := &wizardServiceMock{}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodGet, "/wizard/sessions/s1", "", nil)
	h.Get(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mockSvc.calls)
}

func TestWizardHandlerSelectClassValidatesBody(t *testing.T) {
	mockSvc := &wizardServiceMock{}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodPost, "/wizard/sessions/s1/class", `{}`, teacherClaims())
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.SelectClass(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "class_id")
	assert.Empty(t, mockSvc.calls)

	c, w = newTestContext(http.MethodPost, "/wizard/sessions/s1/class", `{"class_id":"class-1"`, teacherClaims())
	h.SelectClass(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWizardHandlerMapsServiceErrors(t *testing.T) {
	mockSvc := &wizardServiceMock{err: appErrors.Clone(appErrors.ErrRoster, "class class-9 not found")}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodPost, "/wizard/sessions/s1/class", `{"class_id":"class-9"}`, teacherClaims())
	h.SelectClass(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROSTER_ERROR", decodeError(t, w).Code)
	assert.Equal(t, "class-9", mockSvc.lastClass)
}

func TestWizardHandlerGenerateQuestionsIsAccepted(t *testing.T) {
	mockSvc := &wizardServiceMock{session: &models.WizardSession{ID: "s1", State: models.WizardGenerating}}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	body := `{"brief":"frações","question_types":["multiple_choice"],"count":4,"replace":true}`
	c, w := newTestContext(http.MethodPost, "/wizard/sessions/s1/questions/generate", body, teacherClaims())
	h.GenerateQuestions(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 4, mockSvc.lastOpts.Count)
	assert.Equal(t, []models.QuestionType{models.QuestionMultipleChoice}, mockSvc.lastOpts.QuestionTypes)
	assert.True(t, mockSvc.lastReplace)

	c, w = newTestContext(http.MethodPost, "/wizard/sessions/s1/questions/generate", `{"brief":"x","question_types":["essay"],"count":99}`, teacherClaims())
	h.GenerateQuestions(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "count")
}

func TestWizardHandlerUpdateDraftPassesPatch(t *testing.T) {
	mockSvc := &wizardServiceMock{session: &models.WizardSession{ID: "s1"}}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodPatch, "/wizard/sessions/s1/draft", `{"title":"Frações","max_grade":10}`, teacherClaims())
	h.UpdateDraft(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastPatch.Title)
	assert.Equal(t, "Frações", *mockSvc.lastPatch.Title)
	assert.Equal(t, 10.0, *mockSvc.lastPatch.MaxGrade)
	assert.Nil(t, mockSvc.lastPatch.Description)
}

func TestWizardHandlerSubmit(t *testing.T) {
	mockSvc := &wizardServiceMock{session: &models.WizardSession{ID: "s1", State: models.WizardClassSelection}}
	h := NewWizardHandler(mockSvc, service.NewActivityValidator(nil))

	c, w := newTestContext(http.MethodPost, "/wizard/sessions/s1/submit", "", teacherClaims())
	h.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"activity_id":"act-1"`)
}
