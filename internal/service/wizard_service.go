package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

const (
	defaultSessionTTL        = 2 * time.Hour
	defaultSweepInterval     = 5 * time.Minute
	defaultGenerationTimeout = 90 * time.Second
)

type wizardSessionStore interface {
	Save(ctx context.Context, session *models.WizardSession) error
	Get(ctx context.Context, id string) (*models.WizardSession, bool)
	DeleteIdleSince(ctx context.Context, cutoff time.Time) []string
	Count() int
}

type wizardRoster interface {
	GetClass(ctx context.Context, classID string) (*models.Class, error)
	SubmitActivity(ctx context.Context, classID string, activity *models.Activity) (string, error)
}

type wizardTemplates interface {
	Get(id string) (*models.ActivityTemplate, error)
}

// WizardConfig tunes session expiry and generation deadlines.
type WizardConfig struct {
	SessionTTL        time.Duration
	SweepInterval     time.Duration
	GenerationTimeout time.Duration
}

// WizardService drives the multi-step activity authoring flow. Mutations of one session are
// serialised; gateway calls run in the background and report back by generation ticket.
type WizardService struct {
	sessions  wizardSessionStore
	roster    wizardRoster
	templates wizardTemplates
	gateway   ContentGateway
	validator *ActivityValidator
	metrics   *MetricsService
	cfg       WizardConfig
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]context.CancelFunc

	baseCtx     context.Context
	stop        context.CancelFunc
	generations sync.WaitGroup
}

// NewWizardService constructs a WizardService.
func NewWizardService(
	sessions wizardSessionStore,
	roster wizardRoster,
	templates wizardTemplates,
	gateway ContentGateway,
	validator *ActivityValidator,
	metrics *MetricsService,
	cfg WizardConfig,
	logger *zap.Logger,
) *WizardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewActivityValidator(nil)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &WizardService{
		sessions:  sessions,
		roster:    roster,
		templates: templates,
		gateway:   gateway,
		validator: validator,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
		inflight:  make(map[string]context.CancelFunc),
		baseCtx:   baseCtx,
		stop:      stop,
	}
}

// StartSession opens a new authoring session for the teacher.
func (s *WizardService) StartSession(ctx context.Context, teacherID string) (*models.WizardSession, error) {
	if strings.TrimSpace(teacherID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher identity is required")
	}
	now := s.now().UTC()
	session := &models.WizardSession{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		State:     models.WizardClassSelection,
		Draft:     newDraft(teacherID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store wizard session")
	}
	s.metrics.SetWizardSessions(s.sessions.Count())
	s.logger.Debug("wizard session started", zap.String("session_id", session.ID), zap.String("teacher_id", teacherID))
	return session.Clone(), nil
}

// GetSession returns the current snapshot of a session.
func (s *WizardService) GetSession(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(*models.WizardSession) error { return errNoChange })
}

// SelectClass binds the session to a roster class owned by the teacher.
func (s *WizardService) SelectClass(ctx context.Context, id, teacherID, classID string) (*models.WizardSession, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, appErrors.NewValidationError(map[string]string{"class_id": "is required"})
	}
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireState(session, models.WizardClassSelection, models.WizardModeSelection); err != nil {
			return err
		}
		class, err := s.roster.GetClass(ctx, classID)
		if err != nil {
			return err
		}
		if class.TeacherID != teacherID {
			return appErrors.Clone(appErrors.ErrForbidden, "class belongs to another teacher")
		}
		session.ClassID = class.ID
		session.Draft.ClassID = class.ID
		session.State = models.WizardModeSelection
		session.LastError = nil
		return nil
	})
}

// SelectMode switches how the draft is populated. The draft itself is kept.
func (s *WizardService) SelectMode(ctx context.Context, id, teacherID string, mode models.WizardMode) (*models.WizardSession, error) {
	next, ok := mode.EntryState()
	if !ok {
		return nil, appErrors.NewValidationError(map[string]string{"mode": "must be one of manual, template, ai"})
	}
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if session.State != models.WizardModeSelection && !session.State.EntryState() && session.State != models.WizardReview {
			return stepError(session)
		}
		session.Mode = mode
		session.State = next
		session.LastError = nil
		return nil
	})
}

// ApplyTemplate overwrites the draft content with a catalog template.
func (s *WizardService) ApplyTemplate(ctx context.Context, id, teacherID, templateID string) (*models.WizardSession, error) {
	tpl, err := s.templates.Get(strings.TrimSpace(templateID))
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireState(session, models.WizardTemplateEntry); err != nil {
			return err
		}
		draft := &session.Draft
		draft.Title = tpl.Title
		draft.Description = tpl.Description
		draft.Instructions = tpl.Instructions
		draft.Type = tpl.Type
		draft.MaxGrade = tpl.MaxGrade
		draft.Questions = withFreshIDs(tpl.Questions)
		draft.Origin = models.OriginTemplate
		draft.TemplateID = &tpl.ID
		draft.AIContext = nil
		session.LastError = nil
		return nil
	})
}

// GenerateActivity starts drafting a whole activity from the brief in the background.
func (s *WizardService) GenerateActivity(ctx context.Context, id, teacherID, brief string) (*models.WizardSession, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, appErrors.NewValidationError(map[string]string{"brief": "is required"})
	}
	return s.startGeneration(ctx, id, teacherID, brief, models.GenerateActivity, models.GenerationOptions{}, false,
		models.WizardAIBrief)
}

// GenerateQuestions starts drafting questions in the background; they are appended or replace the current ones.
func (s *WizardService) GenerateQuestions(ctx context.Context, id, teacherID, brief string, opts models.GenerationOptions, replace bool) (*models.WizardSession, error) {
	brief = strings.TrimSpace(brief)
	fields := make(map[string]string)
	if brief == "" {
		fields["brief"] = "is required"
	}
	if len(opts.QuestionTypes) == 0 {
		fields["question_types"] = "at least one question type is required"
	}
	if len(fields) > 0 {
		return nil, appErrors.NewValidationError(fields)
	}
	return s.startGeneration(ctx, id, teacherID, brief, models.GenerateQuestions, opts, replace,
		models.WizardManualEntry, models.WizardTemplateEntry, models.WizardAIBrief)
}

// CancelGeneration abandons the in-flight gateway call. Its eventual result is discarded.
func (s *WizardService) CancelGeneration(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if session.State != models.WizardGenerating || session.Generation == nil {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "no generation in progress")
		}
		s.abortGeneration(session)
		return nil
	})
}

// UpdateDraft applies teacher edits to the draft.
func (s *WizardService) UpdateDraft(ctx context.Context, id, teacherID string, patch dto.DraftPatch) (*models.WizardSession, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, appErrors.NewValidationError(map[string]string{"type": "must be one of assignment, quiz, project, exam"})
	}
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireEditable(session); err != nil {
			return err
		}
		applyDraftPatch(&session.Draft, patch)
		return nil
	})
}

// AddQuestion appends a validated question to the draft.
func (s *WizardService) AddQuestion(ctx context.Context, id, teacherID string, question models.Question) (*models.WizardSession, error) {
	question.ID = uuid.NewString()
	if err := s.validator.ValidateQuestion(&question); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireEditable(session); err != nil {
			return err
		}
		if len(session.Draft.Questions) >= models.MaxQuestionCount {
			return appErrors.NewValidationError(map[string]string{"questions": "an activity holds at most 50 questions"})
		}
		session.Draft.Questions = append(session.Draft.Questions, question)
		return nil
	})
}

// UpdateQuestion edits one draft question in place.
func (s *WizardService) UpdateQuestion(ctx context.Context, id, teacherID, questionID string, patch dto.QuestionPatch) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireEditable(session); err != nil {
			return err
		}
		idx := session.Draft.Questions.Find(questionID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		question := session.Draft.Questions[idx]
		applyQuestionPatch(&question, patch)
		if err := s.validator.ValidateQuestion(&question); err != nil {
			return err
		}
		session.Draft.Questions[idx] = question
		return nil
	})
}

// RemoveQuestion deletes one draft question.
func (s *WizardService) RemoveQuestion(ctx context.Context, id, teacherID, questionID string) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireEditable(session); err != nil {
			return err
		}
		idx := session.Draft.Questions.Find(questionID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		session.Draft.Questions = append(session.Draft.Questions[:idx], session.Draft.Questions[idx+1:]...)
		return nil
	})
}

// Review moves the session from an entry step to the review step.
func (s *WizardService) Review(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if session.State == models.WizardReview {
			return errNoChange
		}
		if !session.State.EntryState() {
			return stepError(session)
		}
		session.State = models.WizardReview
		session.LastError = nil
		return nil
	})
}

// Submit validates the draft and commits it to the roster. Any failure keeps the
// session in review with the draft intact.
func (s *WizardService) Submit(ctx context.Context, id, teacherID string) (*dto.SubmitWizardResponse, error) {
	var activityID string
	session, err := s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if err := requireState(session, models.WizardReview); err != nil {
			return err
		}

		activity := session.Draft.Clone()
		activity.TeacherID = session.TeacherID
		activity.ClassID = session.ClassID
		if err := s.validator.ValidateActivity(&activity); err != nil {
			return s.keepInReview(session, err)
		}

		committedID, err := s.roster.SubmitActivity(ctx, session.ClassID, &activity)
		if err != nil {
			return s.keepInReview(session, err)
		}

		activityID = committedID
		resetSession(session)
		session.LastCommittedActivityID = &committedID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wizard committed activity",
		zap.String("session_id", id),
		zap.String("activity_id", activityID),
	)
	return &dto.SubmitWizardResponse{
		State:      models.WizardCommitted,
		ActivityID: activityID,
		Session:    session,
	}, nil
}

// Cancel discards the draft, abandons any generation and restarts the session.
func (s *WizardService) Cancel(ctx context.Context, id, teacherID string) (*models.WizardSession, error) {
	return s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		s.abortGeneration(session)
		resetSession(session)
		return nil
	})
}

// Run sweeps idle sessions until ctx is cancelled.
func (s *WizardService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep removes sessions idle for longer than the configured TTL.
func (s *WizardService) Sweep(ctx context.Context) int {
	cutoff := s.now().UTC().Add(-s.cfg.SessionTTL)
	removed := s.sessions.DeleteIdleSince(ctx, cutoff)

	s.mu.Lock()
	for _, id := range removed {
		if cancel, ok := s.inflight[id]; ok {
			cancel()
			delete(s.inflight, id)
		}
		delete(s.locks, id)
	}
	s.mu.Unlock()

	s.metrics.SetWizardSessions(s.sessions.Count())
	if len(removed) > 0 {
		s.logger.Info("expired wizard sessions", zap.Int("count", len(removed)))
	}
	return len(removed)
}

// Shutdown cancels in-flight generations and waits for their goroutines.
func (s *WizardService) Shutdown() {
	s.stop()
	s.generations.Wait()
}

var errNoChange = errors.New("no change")

// mutate loads the session under its lock, applies fn and persists the result.
// fn returning errNoChange skips the write; any other error aborts it.
func (s *WizardService) mutate(ctx context.Context, id, teacherID string, fn func(*models.WizardSession) error) (*models.WizardSession, error) {
	unlock := s.lockSession(id)
	defer unlock()

	session, ok := s.sessions.Get(ctx, id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "wizard session not found")
	}
	if session.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "wizard session belongs to another teacher")
	}

	if err := fn(session); err != nil {
		if errors.Is(err, errNoChange) {
			return session, nil
		}
		var persisted *persistedError
		if !errors.As(err, &persisted) {
			return nil, err
		}
		err = persisted.err
		if saveErr := s.save(ctx, session); saveErr != nil {
			return nil, saveErr
		}
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

func (s *WizardService) save(ctx context.Context, session *models.WizardSession) error {
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store wizard session")
	}
	return nil
}

func (s *WizardService) lockSession(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// persistedError carries a failure whose session changes must still be saved.
type persistedError struct{ err error }

func (e *persistedError) Error() string { return e.err.Error() }
func (e *persistedError) Unwrap() error { return e.err }

func (s *WizardService) keepInReview(session *models.WizardSession, err error) error {
	message := appErrors.FromError(err).Message
	session.LastError = &message
	return &persistedError{err: err}
}

func (s *WizardService) startGeneration(
	ctx context.Context,
	id, teacherID, brief string,
	kind models.GenerationKind,
	opts models.GenerationOptions,
	replace bool,
	allowed ...models.WizardState,
) (*models.WizardSession, error) {
	var ticket models.GenerationTicket
	genCtx, cancel := context.WithTimeout(s.baseCtx, s.cfg.GenerationTimeout)
	session, err := s.mutate(ctx, id, teacherID, func(session *models.WizardSession) error {
		if session.State == models.WizardGenerating {
			return appErrors.Clone(appErrors.ErrConflict, "a generation is already in progress")
		}
		if err := requireState(session, allowed...); err != nil {
			return err
		}
		if kind == models.GenerateQuestions && opts.MaxGrade == 0 && session.Draft.MaxGrade >= 1 && session.Draft.MaxGrade <= 100 {
			opts.MaxGrade = session.Draft.MaxGrade
		}
		ticket = models.GenerationTicket{
			ID:        uuid.NewString(),
			Kind:      kind,
			Brief:     brief,
			Replace:   replace,
			StartedAt: s.now().UTC(),
		}
		session.ReturnState = session.State
		session.State = models.WizardGenerating
		session.Generation = &ticket
		session.LastError = nil

		s.mu.Lock()
		s.inflight[id] = cancel
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	s.generations.Add(1)
	go func() {
		defer s.generations.Done()
		defer cancel()
		draft, err := s.gateway.GenerateContent(genCtx, brief, kind, opts)
		s.finishGeneration(id, ticket.ID, draft, err)
	}()

	s.logger.Debug("generation started",
		zap.String("session_id", id),
		zap.String("ticket_id", ticket.ID),
		zap.String("kind", string(kind)),
	)
	return session, nil
}

func (s *WizardService) finishGeneration(sessionID, ticketID string, draft *models.Draft, genErr error) {
	ctx := context.Background()
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, ok := s.sessions.Get(ctx, sessionID)
	if !ok || session.Generation == nil || session.Generation.ID != ticketID {
		s.logger.Debug("discarding stale generation result", zap.String("session_id", sessionID), zap.String("ticket_id", ticketID))
		return
	}

	ticket := *session.Generation
	s.clearInflight(sessionID)
	session.Generation = nil
	session.State = session.ReturnState

	if genErr == nil && draft == nil {
		genErr = appErrors.Clone(appErrors.ErrGenerationFailure, "content service returned no draft")
	}
	if genErr != nil {
		message := appErrors.FromError(genErr).Message
		session.LastError = &message
		s.logger.Warn("generation failed", zap.String("session_id", sessionID), zap.Error(genErr))
	} else {
		applyGeneratedDraft(session, ticket, draft)
	}

	if err := s.save(ctx, session); err != nil {
		s.logger.Error("failed to store generation result", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *WizardService) abortGeneration(session *models.WizardSession) {
	if session.Generation == nil {
		return
	}
	s.mu.Lock()
	if cancel, ok := s.inflight[session.ID]; ok {
		cancel()
		delete(s.inflight, session.ID)
	}
	s.mu.Unlock()
	session.Generation = nil
	if session.State == models.WizardGenerating {
		session.State = session.ReturnState
	}
}

func (s *WizardService) clearInflight(sessionID string) {
	s.mu.Lock()
	delete(s.inflight, sessionID)
	s.mu.Unlock()
}

func applyGeneratedDraft(session *models.WizardSession, ticket models.GenerationTicket, draft *models.Draft) {
	target := &session.Draft
	switch ticket.Kind {
	case models.GenerateActivity:
		if draft.Activity == nil {
			return
		}
		generated := draft.Activity.Clone()
		target.Title = generated.Title
		target.Description = generated.Description
		target.Instructions = generated.Instructions
		target.Type = generated.Type
		target.MaxGrade = generated.MaxGrade
		target.Questions = withFreshIDs(generated.Questions)
		target.Origin = models.OriginAIGenerated
		brief := ticket.Brief
		target.AIContext = &brief
		target.TemplateID = nil
	case models.GenerateQuestions:
		generated := withFreshIDs(draft.Questions)
		if ticket.Replace {
			target.Questions = generated
		} else {
			target.Questions = append(target.Questions, generated...)
		}
	}
	session.LastError = nil
}

func newDraft(teacherID string) models.Activity {
	return models.Activity{
		TeacherID: teacherID,
		Origin:    models.OriginManual,
		Questions: models.Questions{},
	}
}

func resetSession(session *models.WizardSession) {
	session.State = models.WizardClassSelection
	session.Mode = ""
	session.ReturnState = ""
	session.ClassID = ""
	session.Draft = newDraft(session.TeacherID)
	session.Generation = nil
	session.LastError = nil
}

func withFreshIDs(questions models.Questions) models.Questions {
	out := questions.Clone()
	if out == nil {
		return models.Questions{}
	}
	for i := range out {
		out[i].ID = uuid.NewString()
	}
	return out
}

func requireState(session *models.WizardSession, allowed ...models.WizardState) error {
	for _, state := range allowed {
		if session.State == state {
			return nil
		}
	}
	return stepError(session)
}

func requireEditable(session *models.WizardSession) error {
	if session.State == models.WizardGenerating {
		return appErrors.Clone(appErrors.ErrConflict, "draft is locked while generation is in progress")
	}
	if session.State.EntryState() || session.State == models.WizardReview {
		return nil
	}
	return stepError(session)
}

func stepError(session *models.WizardSession) error {
	if session.State == models.WizardGenerating {
		return appErrors.Clone(appErrors.ErrConflict, "a generation is in progress")
	}
	return appErrors.Clone(appErrors.ErrPreconditionFailed, "operation not allowed in wizard step "+string(session.State))
}

func applyDraftPatch(draft *models.Activity, patch dto.DraftPatch) {
	if patch.Title != nil {
		draft.Title = *patch.Title
	}
	if patch.Description != nil {
		draft.Description = *patch.Description
	}
	if patch.Instructions != nil {
		draft.Instructions = *patch.Instructions
	}
	if patch.Type != nil {
		draft.Type = *patch.Type
	}
	if patch.DueDate != nil {
		draft.DueDate = *patch.DueDate
	}
	if patch.DueTime != nil {
		draft.DueTime = *patch.DueTime
	}
	if patch.MaxGrade != nil {
		draft.MaxGrade = *patch.MaxGrade
	}
	if patch.AllowLateSubmission != nil {
		draft.AllowLateSubmission = *patch.AllowLateSubmission
	}
	if patch.EnableAICorrection != nil {
		draft.EnableAICorrection = *patch.EnableAICorrection
	}
	if patch.RequireFileUpload != nil {
		draft.RequireFileUpload = *patch.RequireFileUpload
	}
}

func applyQuestionPatch(q *models.Question, patch dto.QuestionPatch) {
	if patch.Type != nil {
		q.Type = *patch.Type
	}
	if patch.Prompt != nil {
		q.Prompt = *patch.Prompt
	}
	if patch.Options != nil {
		q.Options = append([]string(nil), (*patch.Options)...)
	}
	if patch.CorrectAnswer != nil {
		q.CorrectAnswer = *patch.CorrectAnswer
	}
	if patch.Points != nil {
		q.Points = *patch.Points
	}
	if patch.Difficulty != nil {
		q.Difficulty = *patch.Difficulty
	}
}
