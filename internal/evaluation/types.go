package evaluation

// Cache kinds namespace fingerprints per evaluation type so identical
// content hashed for different operations can never collide.
const (
	KindQAExtraction = "qa-extraction"
	KindQAEvaluation = "qa-evaluation"
	KindSlideContent = "slide-content"
	KindSlideDesign  = "slide-design"
	KindRepoAnalysis = "repo-analysis"
	KindRepoGrading  = "repo-grading"
)

// Judgment is the outcome of one question evaluation. It is immutable once
// returned by the gateway; aggregation only reads it.
type Judgment struct {
	Question      string   `json:"question"`
	StudentAnswer string   `json:"student_answer"`
	CorrectAnswer string   `json:"correct_answer"`
	IsCorrect     bool     `json:"is_correct"`
	PartialCredit *float64 `json:"partial_credit,omitempty"`
	MaxMarks      float64  `json:"max_marks"`
	Feedback      string   `json:"feedback"`
}

// Normalized returns the judgment's effective score in [0,1]. A correct
// judgment is always 1.0 regardless of the partial-credit field.
func (j Judgment) Normalized() float64 {
	if j.IsCorrect {
		return 1.0
	}
	if j.PartialCredit == nil {
		return 0.0
	}
	credit := *j.PartialCredit
	if credit < 0 {
		return 0.0
	}
	if credit > 1 {
		return 1.0
	}
	return credit
}

// EffectiveMaxMarks returns the weight of the judgment, defaulting to 1.0
// when the model omitted it or produced a non-positive value.
func (j Judgment) EffectiveMaxMarks() float64 {
	if j.MaxMarks <= 0 {
		return 1.0
	}
	return j.MaxMarks
}
