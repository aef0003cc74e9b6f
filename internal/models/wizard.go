package models

import "time"

// WizardState is a step of the authoring wizard.
type WizardState string

const (
	WizardClassSelection WizardState = "class_selection"
	WizardModeSelection  WizardState = "mode_selection"
	WizardManualEntry    WizardState = "manual_entry"
	WizardTemplateEntry  WizardState = "template_entry"
	WizardAIBrief        WizardState = "ai_brief"
	WizardGenerating     WizardState = "generating"
	WizardReview         WizardState = "review"
	WizardCommitted      WizardState = "committed"
)

// EntryState reports whether the draft can be edited in this state.
func (s WizardState) EntryState() bool {
	switch s {
	case WizardManualEntry, WizardTemplateEntry, WizardAIBrief:
		return true
	}
	return false
}

// WizardMode is how the teacher chose to populate the draft.
type WizardMode string

const (
	WizardModeManual   WizardMode = "manual"
	WizardModeTemplate WizardMode = "template"
	WizardModeAI       WizardMode = "ai"
)

// EntryState maps a mode to the wizard step that edits it.
func (m WizardMode) EntryState() (WizardState, bool) {
	switch m {
	case WizardModeManual:
		return WizardManualEntry, true
	case WizardModeTemplate:
		return WizardTemplateEntry, true
	case WizardModeAI:
		return WizardAIBrief, true
	}
	return "", false
}

// GenerationTicket identifies the in-flight gateway call of a session.
type GenerationTicket struct {
	ID        string         `json:"id"`
	Kind      GenerationKind `json:"kind"`
	Brief     string         `json:"brief"`
	Replace   bool           `json:"replace,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// WizardSession is the per-teacher authoring state.
type WizardSession struct {
	ID                      string            `json:"id"`
	TeacherID               string            `json:"teacher_id"`
	ClassID                 string            `json:"class_id,omitempty"`
	State                   WizardState       `json:"state"`
	Mode                    WizardMode        `json:"mode,omitempty"`
	ReturnState             WizardState       `json:"-"`
	Draft                   Activity          `json:"draft"`
	Generation              *GenerationTicket `json:"generation,omitempty"`
	LastError               *string           `json:"last_error,omitempty"`
	LastCommittedActivityID *string           `json:"last_committed_activity_id,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// Clone returns a snapshot safe to hand to callers.
func (s *WizardSession) Clone() *WizardSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Draft = s.Draft.Clone()
	if s.Generation != nil {
		g := *s.Generation
		out.Generation = &g
	}
	if s.LastError != nil {
		v := *s.LastError
		out.LastError = &v
	}
	if s.LastCommittedActivityID != nil {
		v := *s.LastCommittedActivityID
		out.LastCommittedActivityID = &v
	}
	return &out
}
