package dto

import (
	"time"

	"github.com/acadex/acadex-api/internal/models"
)

// EvaluateRequest describes the payload for grading uploaded submissions.
type EvaluateRequest struct {
	Title       string   `form:"title" json:"title" validate:"required,min=3"`
	Description string   `form:"description" json:"description" validate:"required,min=10"`
	FileIDs     []string `form:"file_ids" json:"file_ids" validate:"required,min=1,dive,required"`
}

// EvaluateSlidesRequest describes the payload for grading a slide deck.
type EvaluateSlidesRequest struct {
	Title       string   `form:"title" json:"title" validate:"required,min=3"`
	Description string   `form:"description" json:"description" validate:"required,min=10"`
	FileIDs     []string `form:"file_ids" json:"file_ids" validate:"required,min=1,dive,required"`
}

// EvaluateRepoRequest describes the payload for grading a GitHub repository.
type EvaluateRepoRequest struct {
	Title       string `form:"title" json:"title" validate:"required,min=3"`
	Description string `form:"description" json:"description" validate:"required,min=10"`
	RepoURL     string `form:"repo_url" json:"repo_url" validate:"required,url"`
	StudentName string `form:"student_name" json:"student_name" validate:"omitempty,max=255"`
}

// ReEvaluateRequest asks for a fresh judgment of a single stored file.
type ReEvaluateRequest struct {
	FileID      string `json:"file_id" validate:"required"`
	Description string `json:"description" validate:"required,min=10"`
}

// ConsistencyCheckRequest drives the determinism self-test.
type ConsistencyCheckRequest struct {
	Question      string `json:"question" validate:"required"`
	StudentAnswer string `json:"student_answer" validate:"required"`
	Rubric        string `json:"rubric" validate:"required,min=10"`
	Trials        int    `json:"trials" validate:"omitempty,min=2,max=20"`
}

// EvaluationDetailResponse is one per-question judgment as returned to clients.
type EvaluationDetailResponse struct {
	Question      string   `json:"question"`
	StudentAnswer string   `json:"student_answer"`
	CorrectAnswer string   `json:"correct_answer"`
	IsCorrect     bool     `json:"is_correct"`
	PartialCredit *float64 `json:"partial_credit"`
	MaxMarks      float64  `json:"max_marks"`
	Feedback      string   `json:"feedback"`
}

// EvaluationResultResponse is one submission's verdict.
type EvaluationResultResponse struct {
	ID             uint                       `json:"id"`
	StudentName    string                     `json:"student_name"`
	ScorePercent   float64                    `json:"score_percent"`
	Reasoning      string                     `json:"reasoning,omitempty"`
	Succeeded      bool                       `json:"succeeded"`
	EvaluationType string                     `json:"evaluation_type"`
	SlideContent   interface{}                `json:"slide_content,omitempty"`
	SlideDesign    interface{}                `json:"slide_design,omitempty"`
	RepoAnalysis   interface{}                `json:"repo_analysis,omitempty"`
	Details        []EvaluationDetailResponse `json:"details,omitempty"`
}

// AssignmentResponse is a grading run with all of its results.
type AssignmentResponse struct {
	ID          uint                       `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Status      string                     `json:"status"`
	Category    string                     `json:"category"`
	CreatedAt   time.Time                  `json:"created_at"`
	Results     []EvaluationResultResponse `json:"results"`
}

// UploadedFileResponse confirms a stored upload.
type UploadedFileResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	StudentName string `json:"student_name,omitempty"`
}

// NewEvaluationDetailResponse converts a model into a DTO.
func NewEvaluationDetailResponse(model models.EvaluationDetail) EvaluationDetailResponse {
	return EvaluationDetailResponse{
		Question:      model.Question,
		StudentAnswer: model.StudentAnswer,
		CorrectAnswer: model.CorrectAnswer,
		IsCorrect:     model.IsCorrect,
		PartialCredit: model.PartialCredit,
		MaxMarks:      model.MaxMarks,
		Feedback:      model.Feedback,
	}
}

// NewEvaluationResultResponse converts a model into a DTO.
func NewEvaluationResultResponse(model models.EvaluationResult) EvaluationResultResponse {
	details := make([]EvaluationDetailResponse, 0, len(model.Details))
	for _, detail := range model.Details {
		details = append(details, NewEvaluationDetailResponse(detail))
	}

	resp := EvaluationResultResponse{
		ID:             model.ID,
		StudentName:    model.StudentName,
		ScorePercent:   model.ScorePercent,
		Reasoning:      model.Reasoning,
		Succeeded:      model.Succeeded,
		EvaluationType: model.EvaluationType,
		Details:        details,
	}
	if len(model.SlideContent) > 0 {
		resp.SlideContent = model.SlideContent
	}
	if len(model.SlideDesign) > 0 {
		resp.SlideDesign = model.SlideDesign
	}
	if len(model.RepoAnalysis) > 0 {
		resp.RepoAnalysis = model.RepoAnalysis
	}
	return resp
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	results := make([]EvaluationResultResponse, 0, len(model.Results))
	for _, result := range model.Results {
		results = append(results, NewEvaluationResultResponse(result))
	}

	return AssignmentResponse{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Status:      model.Status,
		Category:    model.Category,
		CreatedAt:   model.CreatedAt,
		Results:     results,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
