package models

import "time"

// Assignment statuses.
const (
	AssignmentStatusDraft     = "draft"
	AssignmentStatusCompleted = "completed"
	AssignmentStatusArchived  = "archived"
)

// Assignment categories describing how the submission set was evaluated.
const (
	CategoryFileUpload = "file_upload"
	CategorySlideDeck  = "slide_deck"
	CategoryRepository = "repository"
)

// Assignment is one grading run: a rubric plus the submissions evaluated
// against it.
type Assignment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	Category    string    `gorm:"size:32" json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Files   []AssignmentFile   `gorm:"constraint:OnDelete:CASCADE" json:"files,omitempty"`
	Results []EvaluationResult `gorm:"constraint:OnDelete:CASCADE" json:"results,omitempty"`
}

// AssignmentFile is one submitted artefact with its extracted text.
type AssignmentFile struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AssignmentID  uint      `gorm:"not null;index" json:"assignment_id"`
	FileID        string    `gorm:"size:64;not null;index" json:"file_id"`
	Filename      string    `gorm:"size:512;not null" json:"filename"`
	ExtractedText string    `gorm:"type:text" json:"extracted_text,omitempty"`
	StudentName   string    `gorm:"size:255" json:"student_name"`
	FileType      string    `gorm:"size:64;not null" json:"file_type"`
	FileSize      int64     `json:"file_size"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
