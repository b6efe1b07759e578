package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evaluation types.
const (
	EvaluationTypeFile       = "file"
	EvaluationTypeSlideDeck  = "slide_deck"
	EvaluationTypeRepository = "repository"
)

// EvaluationResult is the aggregate verdict for one submission.
type EvaluationResult struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AssignmentID     uint           `gorm:"not null;index" json:"assignment_id"`
	AssignmentFileID *uint          `gorm:"index" json:"assignment_file_id"`
	StudentName      string         `gorm:"size:255;not null" json:"student_name"`
	ScorePercent     float64        `gorm:"not null" json:"score_percent"`
	Reasoning        string         `gorm:"type:text" json:"reasoning"`
	Succeeded        bool           `gorm:"not null;default:true" json:"succeeded"`
	EvaluationType   string         `gorm:"size:32;not null" json:"evaluation_type"`
	SlideContent     datatypes.JSON `json:"slide_content,omitempty"`
	SlideDesign      datatypes.JSON `json:"slide_design,omitempty"`
	RepoAnalysis     datatypes.JSON `json:"repo_analysis,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// FileRef carries the upload file id between orchestration and persistence
	// so the repository can resolve AssignmentFileID after files are created.
	FileRef string `gorm:"-" json:"-"`

	Details []EvaluationDetail `gorm:"constraint:OnDelete:CASCADE" json:"details,omitempty"`
}

// EvaluationDetail is one per-question judgment. OrderIndex preserves the
// original question order even though judgments are produced concurrently.
type EvaluationDetail struct {
	ID                 uint     `gorm:"primaryKey" json:"id"`
	EvaluationResultID uint     `gorm:"not null;index" json:"evaluation_result_id"`
	Question           string   `gorm:"type:text;not null" json:"question"`
	StudentAnswer      string   `gorm:"type:text" json:"student_answer"`
	CorrectAnswer      string   `gorm:"type:text" json:"correct_answer"`
	IsCorrect          bool     `gorm:"not null;default:false" json:"is_correct"`
	PartialCredit      *float64 `json:"partial_credit"`
	MaxMarks           float64  `gorm:"not null;default:1" json:"max_marks"`
	Feedback           string   `gorm:"type:text" json:"feedback"`
	OrderIndex         int      `gorm:"not null;default:0" json:"order_index"`
}
