package models

// GenerationKind selects what the content gateway should draft.
type GenerationKind string

const (
	GenerateActivity  GenerationKind = "activity"
	GenerateQuestions GenerationKind = "questions"
)

// Valid reports whether k is a known generation kind.
func (k GenerationKind) Valid() bool {
	return k == GenerateActivity || k == GenerateQuestions
}

// Generation limits.
const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 50
)

// GenerationOptions narrows what the gateway drafts.
type GenerationOptions struct {
	QuestionTypes []QuestionType `json:"question_types,omitempty"`
	Difficulty    Difficulty     `json:"difficulty,omitempty"`
	Count         int            `json:"count,omitempty"`
	MaxGrade      float64        `json:"max_grade,omitempty"`
}

// Draft is the gateway's proposed content. Activity is set for kind=activity, Questions otherwise.
type Draft struct {
	Kind      GenerationKind `json:"kind"`
	Activity  *Activity      `json:"activity,omitempty"`
	Questions Questions      `json:"questions,omitempty"`
}

// GradeProposal is the gateway's suggested grade for a submission.
type GradeProposal struct {
	Grade      float64 `json:"grade"`
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`
}
