package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/repository"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

// gatedGateway blocks generation until released so tests can observe the generating state.
type gatedGateway struct {
	release chan struct{}
	draft   *models.Draft
	err     error
	calls   atomic.Int32
	once    sync.Once
}

func newGatedGateway(draft *models.Draft, err error) *gatedGateway {
	return &gatedGateway{release: make(chan struct{}), draft: draft, err: err}
}

func (g *gatedGateway) open() {
	g.once.Do(func() { close(g.release) })
}

func (g *gatedGateway) GenerateContent(ctx context.Context, _ string, _ models.GenerationKind, _ models.GenerationOptions) (*models.Draft, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		<-g.release
	}
	return g.draft, g.err
}

func (g *gatedGateway) GradeSubmission(context.Context, *models.Activity, *models.Submission) (*models.GradeProposal, error) {
	return nil, appErrors.ErrGradingFailure
}

type wizardFixture struct {
	svc        *WizardService
	activities *fakeActivityStore
	sessions   *repository.WizardSessionRepository
}

func newWizardFixture(t *testing.T, gateway ContentGateway) *wizardFixture {
	t.Helper()
	activities := newFakeActivityStore()
	classes := &fakeClassStore{classes: map[string]models.Class{
		"class-1": {ID: "class-1", TeacherID: "teacher-1", StudentCount: 30},
		"class-2": {ID: "class-2", TeacherID: "teacher-2", StudentCount: 25},
	}}
	roster := NewRosterService(classes, activities, newFakeSubmissionStore(), time.UTC, nil)
	sessions := repository.NewWizardSessionRepository()
	svc := NewWizardService(sessions, roster, NewTemplateCatalog(), gateway, nil, nil, WizardConfig{SessionTTL: time.Hour}, nil)
	t.Cleanup(svc.Shutdown)
	return &wizardFixture{svc: svc, activities: activities, sessions: sessions}
}

// sessionInMode starts a session for teacher-1 on class-1 and selects the mode.
func (f *wizardFixture) sessionInMode(t *testing.T, mode models.WizardMode) string {
	t.Helper()
	ctx := context.Background()
	session, err := f.svc.StartSession(ctx, "teacher-1")
	require.NoError(t, err)
	_, err = f.svc.SelectClass(ctx, session.ID, "teacher-1", "class-1")
	require.NoError(t, err)
	updated, err := f.svc.SelectMode(ctx, session.ID, "teacher-1", mode)
	require.NoError(t, err)
	entry, _ := mode.EntryState()
	require.Equal(t, entry, updated.State)
	return session.ID
}

func strPtr(v string) *string { return &v }

func TestWizardManualFlowCommitsActivity(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeManual)

	_, err := f.svc.UpdateDraft(ctx, id, "teacher-1", dto.DraftPatch{
		Title:              strPtr("Frações"),
		Description:        strPtr("Lista de exercícios"),
		Type:               (*models.ActivityType)(strPtr(string(models.ActivityAssignment))),
		DueDate:            strPtr("2026-11-20"),
		MaxGrade:           floatPtr(10),
		EnableAICorrection: func() *bool { v := true; return &v }(),
	})
	require.NoError(t, err)

	session, err := f.svc.AddQuestion(ctx, id, "teacher-1", models.Question{
		Type: models.QuestionTrueFalse, Prompt: "1/2 = 0.5?", CorrectAnswer: "Verdadeiro", Points: 10, Difficulty: models.DifficultyEasy,
	})
	require.NoError(t, err)
	require.Len(t, session.Draft.Questions, 1)
	assert.NotEmpty(t, session.Draft.Questions[0].ID)
	assert.Equal(t, "true", session.Draft.Questions[0].CorrectAnswer)

	session, err = f.svc.Review(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardReview, session.State)

	result, err := f.svc.Submit(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardCommitted, result.State)
	require.NotEmpty(t, result.ActivityID)
	assert.Equal(t, models.WizardClassSelection, result.Session.State)
	require.NotNil(t, result.Session.LastCommittedActivityID)
	assert.Equal(t, result.ActivityID, *result.Session.LastCommittedActivityID)
	assert.Empty(t, result.Session.Draft.Title)

	stored, err := f.activities.FindByID(ctx, result.ActivityID)
	require.NoError(t, err)
	assert.Equal(t, "class-1", stored.ClassID)
	assert.Equal(t, "teacher-1", stored.TeacherID)
	assert.Equal(t, models.DefaultDueTime, stored.DueTime)
	assert.Equal(t, models.OriginManual, stored.Origin)
	assert.True(t, stored.EnableAICorrection)
}

func TestWizardSelectClassChecksRoster(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	session, err := f.svc.StartSession(ctx, "teacher-1")
	require.NoError(t, err)

	_, err = f.svc.SelectClass(ctx, session.ID, "teacher-1", "")
	assert.Equal(t, []string{"class_id"}, validationFields(t, err))

	_, err = f.svc.SelectClass(ctx, session.ID, "teacher-1", "class-404")
	assert.True(t, errors.Is(err, appErrors.ErrRoster))

	_, err = f.svc.SelectClass(ctx, session.ID, "teacher-1", "class-2")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	current, err := f.svc.GetSession(ctx, session.ID, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardClassSelection, current.State)

	_, err = f.svc.GetSession(ctx, session.ID, "teacher-2")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestWizardSubmitInvalidDraftStaysInReview(t *testing.T) {
	// Scenario E
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeManual)

	_, err := f.svc.UpdateDraft(ctx, id, "teacher-1", dto.DraftPatch{
		Title:       strPtr(""),
		Description: strPtr("Lista"),
		Type:        (*models.ActivityType)(strPtr("quiz")),
		DueDate:     strPtr("2026-11-20"),
		MaxGrade:    floatPtr(10),
	})
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, id, "teacher-1")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, id, "teacher-1")
	require.Error(t, err)
	assert.Contains(t, validationFields(t, err), "title")

	session, err := f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardReview, session.State)
	require.NotNil(t, session.LastError)
	assert.Equal(t, "Lista", session.Draft.Description)
	assert.Empty(t, f.activities.activities)
}

func TestWizardSubmitRosterFailureKeepsDraft(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeTemplate)
	_, err := f.svc.ApplyTemplate(ctx, id, "teacher-1", "quiz-review")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(ctx, id, "teacher-1", dto.DraftPatch{DueDate: strPtr("2026-12-01")})
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, id, "teacher-1")
	require.NoError(t, err)

	f.activities.createErr = errors.New("connection reset")
	_, err = f.svc.Submit(ctx, id, "teacher-1")
	require.Error(t, err)

	session, err := f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardReview, session.State)
	assert.Equal(t, "Review quiz", session.Draft.Title)
	assert.Len(t, session.Draft.Questions, 3)

	f.activities.createErr = nil
	result, err := f.svc.Submit(ctx, id, "teacher-1")
	require.NoError(t, err)
	stored, err := f.activities.FindByID(ctx, result.ActivityID)
	require.NoError(t, err)
	assert.Equal(t, models.OriginTemplate, stored.Origin)
	require.NotNil(t, stored.TemplateID)
	assert.Equal(t, "quiz-review", *stored.TemplateID)
}

func TestWizardLastWriterWins(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeTemplate)

	_, err := f.svc.ApplyTemplate(ctx, id, "teacher-1", "essay-argumentative")
	require.NoError(t, err)

	_, err = f.svc.SelectMode(ctx, id, "teacher-1", models.WizardModeAI)
	require.NoError(t, err)
	brief := "Quiz sobre história do Brasil colonial com 5 questões"
	_, err = f.svc.GenerateActivity(ctx, id, "teacher-1", brief)
	require.NoError(t, err)
	f.svc.generations.Wait()

	session, err := f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardAIBrief, session.State)
	assert.Equal(t, models.ActivityQuiz, session.Draft.Type)
	assert.Len(t, session.Draft.Questions, 5)
	assert.Equal(t, models.OriginAIGenerated, session.Draft.Origin)
	require.NotNil(t, session.Draft.AIContext)
	assert.Equal(t, brief, *session.Draft.AIContext)
	assert.Nil(t, session.Draft.TemplateID)
	assert.NotEqual(t, "Argumentative essay", session.Draft.Title)
}

func TestWizardGenerationConflictAndCancel(t *testing.T) {
	gateway := newGatedGateway(&models.Draft{Kind: models.GenerateActivity, Activity: &models.Activity{
		Title: "Generated", Type: models.ActivityExam, Description: "d", MaxGrade: 10,
	}}, nil)
	f := newWizardFixture(t, gateway)
	t.Cleanup(gateway.open)
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeAI)

	session, err := f.svc.GenerateActivity(ctx, id, "teacher-1", "prova de álgebra")
	require.NoError(t, err)
	assert.Equal(t, models.WizardGenerating, session.State)
	require.NotNil(t, session.Generation)

	_, err = f.svc.GenerateActivity(ctx, id, "teacher-1", "again")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	_, err = f.svc.UpdateDraft(ctx, id, "teacher-1", dto.DraftPatch{Title: strPtr("x")})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	session, err = f.svc.CancelGeneration(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardAIBrief, session.State)
	assert.Nil(t, session.Generation)

	gateway.open()
	f.svc.generations.Wait()

	session, err = f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardAIBrief, session.State)
	assert.Empty(t, session.Draft.Title, "abandoned result must be discarded")
	assert.EqualValues(t, 1, gateway.calls.Load())
}

func TestWizardGenerationFailureKeepsDraft(t *testing.T) {
	gateway := newGatedGateway(nil, appErrors.Clone(appErrors.ErrGenerationFailure, "model unavailable"))
	gateway.open()
	f := newWizardFixture(t, gateway)
	t.Cleanup(gateway.open)
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeAI)
	_, err := f.svc.UpdateDraft(ctx, id, "teacher-1", dto.DraftPatch{Title: strPtr("Mine")})
	require.NoError(t, err)

	_, err = f.svc.GenerateActivity(ctx, id, "teacher-1", "projeto em grupo")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		session, err := f.svc.GetSession(ctx, id, "teacher-1")
		return err == nil && session.State == models.WizardAIBrief
	}, time.Second, 5*time.Millisecond)

	session, err := f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	require.NotNil(t, session.LastError)
	assert.Equal(t, "model unavailable", *session.LastError)
	assert.Equal(t, "Mine", session.Draft.Title)
	assert.Equal(t, models.OriginManual, session.Draft.Origin)
}

func TestWizardGenerateQuestionsAppendAndReplace(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeManual)
	_, err := f.svc.AddQuestion(ctx, id, "teacher-1", models.Question{
		Type: models.QuestionEssay, Prompt: "Explain", Points: 2, Difficulty: models.DifficultyHard,
	})
	require.NoError(t, err)

	opts := models.GenerationOptions{QuestionTypes: []models.QuestionType{models.QuestionMultipleChoice}, Count: 3}
	_, err = f.svc.GenerateQuestions(ctx, id, "teacher-1", "frações", opts, false)
	require.NoError(t, err)
	f.svc.generations.Wait()

	session, err := f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	require.Len(t, session.Draft.Questions, 4)
	assert.Equal(t, models.QuestionEssay, session.Draft.Questions[0].Type)
	assert.Equal(t, models.WizardManualEntry, session.State)

	_, err = f.svc.GenerateQuestions(ctx, id, "teacher-1", "frações", opts, true)
	require.NoError(t, err)
	f.svc.generations.Wait()

	session, err = f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, session.Draft.Questions, 3)

	_, err = f.svc.GenerateQuestions(ctx, id, "teacher-1", "frações", models.GenerationOptions{}, false)
	assert.Equal(t, []string{"question_types"}, validationFields(t, err))
}

func TestWizardQuestionEditing(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeManual)

	_, err := f.svc.AddQuestion(ctx, id, "teacher-1", models.Question{Type: models.QuestionMultipleChoice, Prompt: "?", Points: 1, Difficulty: models.DifficultyEasy})
	assert.ElementsMatch(t, []string{"options", "correct_answer"}, validationFields(t, err))

	session, err := f.svc.AddQuestion(ctx, id, "teacher-1", models.Question{
		Type: models.QuestionMultipleChoice, Prompt: "Capital?", Options: []string{"Lisboa", "Porto"}, CorrectAnswer: "Lisboa", Points: 1, Difficulty: models.DifficultyEasy,
	})
	require.NoError(t, err)
	qid := session.Draft.Questions[0].ID

	_, err = f.svc.UpdateQuestion(ctx, id, "teacher-1", qid, dto.QuestionPatch{CorrectAnswer: strPtr("Braga")})
	assert.Equal(t, []string{"correct_answer"}, validationFields(t, err))

	session, err = f.svc.UpdateQuestion(ctx, id, "teacher-1", qid, dto.QuestionPatch{Points: floatPtr(3)})
	require.NoError(t, err)
	assert.InDelta(t, 3, session.Draft.Questions[0].Points, 0.001)
	assert.Equal(t, "Lisboa", session.Draft.Questions[0].CorrectAnswer)

	_, err = f.svc.RemoveQuestion(ctx, id, "teacher-1", "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	session, err = f.svc.RemoveQuestion(ctx, id, "teacher-1", qid)
	require.NoError(t, err)
	assert.Empty(t, session.Draft.Questions)
}

func TestWizardCancelResetsSession(t *testing.T) {
	gateway := newGatedGateway(&models.Draft{Kind: models.GenerateActivity, Activity: &models.Activity{Title: "late"}}, nil)
	f := newWizardFixture(t, gateway)
	t.Cleanup(gateway.open)
	ctx := context.Background()
	id := f.sessionInMode(t, models.WizardModeAI)
	_, err := f.svc.GenerateActivity(ctx, id, "teacher-1", "quiz")
	require.NoError(t, err)

	session, err := f.svc.Cancel(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardClassSelection, session.State)
	assert.Empty(t, session.ClassID)

	gateway.open()
	f.svc.generations.Wait()
	session, err = f.svc.GetSession(ctx, id, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.WizardClassSelection, session.State)
	assert.Empty(t, session.Draft.Title)
}

func TestWizardStepGuards(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	session, err := f.svc.StartSession(ctx, "teacher-1")
	require.NoError(t, err)

	_, err = f.svc.SelectMode(ctx, session.ID, "teacher-1", models.WizardModeManual)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	_, err = f.svc.Review(ctx, session.ID, "teacher-1")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	_, err = f.svc.Submit(ctx, session.ID, "teacher-1")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	id := f.sessionInMode(t, models.WizardModeManual)
	_, err = f.svc.ApplyTemplate(ctx, id, "teacher-1", "quiz-review")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	_, err = f.svc.ApplyTemplate(ctx, id, "teacher-1", "unknown")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestWizardSweepExpiresIdleSessions(t *testing.T) {
	f := newWizardFixture(t, NewHeuristicGateway(nil))
	ctx := context.Background()
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(start)

	idle, err := f.svc.StartSession(ctx, "teacher-1")
	require.NoError(t, err)
	f.svc.now = fixedClock(start.Add(50 * time.Minute))
	active, err := f.svc.StartSession(ctx, "teacher-1")
	require.NoError(t, err)

	f.svc.now = fixedClock(start.Add(61 * time.Minute))
	assert.Equal(t, 1, f.svc.Sweep(ctx))

	_, err = f.svc.GetSession(ctx, idle.ID, "teacher-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = f.svc.GetSession(ctx, active.ID, "teacher-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, f.sessions.Count())
}
