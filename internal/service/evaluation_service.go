package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/evaluation"
	"github.com/acadex/acadex-api/internal/models"
	"github.com/acadex/acadex-api/internal/observability"
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/pkg/ai"
	"github.com/acadex/acadex-api/pkg/extract"
)

// ErrAssignmentNotFound indicates the requested grading run does not exist
// for the caller.
var ErrAssignmentNotFound = errors.New("assignment not found")

// unavailableReasoning is the reasoning attached to degraded results when the
// model could not be reached. The submission is never silently scored zero
// without this marker.
const unavailableReasoning = "Evaluation temporarily unavailable. Please re-evaluate this submission later."

// qaExtractionSchema constrains the structured output of the Q&A extractor.
var qaExtractionSchema = ai.MustCompileSchema("qa_extraction", `{
	"type": "object",
	"properties": {
		"pairs": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"question": {"type": "string"},
					"student_answer": {"type": "string"}
				},
				"required": ["question", "student_answer"]
			}
		},
		"student_name": {"type": "string"}
	},
	"required": ["pairs"]
}`)

type qaExtraction struct {
	Pairs       []extract.QAPair `json:"pairs"`
	StudentName string           `json:"student_name"`
}

// EvaluationService orchestrates grading of uploaded submissions.
type EvaluationService interface {
	EvaluateFiles(ctx context.Context, userID uint, payload dto.EvaluateRequest) (dto.AssignmentResponse, error)
	History(ctx context.Context, userID uint, limit, offset int) ([]dto.AssignmentResponse, error)
	Assignment(ctx context.Context, id, userID uint) (dto.AssignmentResponse, error)
}

type evaluationService struct {
	uploads   UploadService
	caller    ai.Caller
	consensus *evaluation.ConsensusEvaluator
	cache     *evaluation.ResultCache
	repo      repository.AssignmentRepository
	validator *validator.Validate
	events    *EventPublisher
	precision int
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewEvaluationService constructs the orchestrator.
func NewEvaluationService(
	uploads UploadService,
	caller ai.Caller,
	consensus *evaluation.ConsensusEvaluator,
	cache *evaluation.ResultCache,
	repo repository.AssignmentRepository,
	validate *validator.Validate,
	events *EventPublisher,
	precision int,
	logger zerolog.Logger,
) EvaluationService {
	return &evaluationService{
		uploads:   uploads,
		caller:    caller,
		consensus: consensus,
		cache:     cache,
		repo:      repo,
		validator: validate,
		events:    events,
		precision: precision,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/acadex/acadex-api/internal/service/evaluation"),
	}
}

func (s *evaluationService) EvaluateFiles(ctx context.Context, userID uint, payload dto.EvaluateRequest) (dto.AssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.files")
	span.SetAttributes(
		attribute.Int64("evaluation.user_id", int64(userID)),
		attribute.Int("evaluation.file_count", len(payload.FileIDs)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssignmentResponse{}, err
	}

	uploads := make([]StoredUpload, 0, len(payload.FileIDs))
	for _, fileID := range payload.FileIDs {
		stored, err := s.uploads.Get(ctx, fileID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload_lookup_failed")
			return dto.AssignmentResponse{}, fmt.Errorf("file %s: %w", fileID, err)
		}
		uploads = append(uploads, stored)
	}

	assignment := models.Assignment{
		UserID:      userID,
		Title:       strings.TrimSpace(payload.Title),
		Description: strings.TrimSpace(payload.Description),
		Status:      models.AssignmentStatusCompleted,
		Category:    models.CategoryFileUpload,
	}
	for _, stored := range uploads {
		assignment.Files = append(assignment.Files, models.AssignmentFile{
			FileID:        stored.FileID,
			Filename:      stored.Filename,
			ExtractedText: stored.Text,
			StudentName:   stored.StudentName,
			FileType:      stored.FileType,
			FileSize:      stored.FileSize,
			UploadedAt:    stored.UploadedAt,
		})
	}

	// Submissions are independent; evaluate them in parallel and keep the
	// request's file order in the stored results.
	results := make([]models.EvaluationResult, len(uploads))
	var wg sync.WaitGroup
	for i, stored := range uploads {
		wg.Add(1)
		go func(slot int, stored StoredUpload) {
			defer wg.Done()
			results[slot] = s.evaluateSubmission(ctx, assignment.Description, stored)
		}(i, stored)
	}
	wg.Wait()
	assignment.Results = results

	if err := s.repo.CreateGraded(ctx, &assignment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.AssignmentResponse{}, err
	}

	s.events.EvaluationCompleted(ctx, assignment)
	recordEvaluationMetrics(assignment)
	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("submissions", len(results)).
		Msg("evaluation complete")

	return dto.NewAssignmentResponse(assignment), nil
}

func recordEvaluationMetrics(assignment models.Assignment) {
	for _, result := range assignment.Results {
		outcome := "succeeded"
		if !result.Succeeded {
			outcome = "degraded"
		}
		observability.Evaluations().WithLabelValues(assignment.Category, outcome).Inc()
		if result.Succeeded {
			observability.EvaluationScores().WithLabelValues(assignment.Category).Observe(result.ScorePercent)
		}
	}
}

// evaluateSubmission grades one submission end to end. It never returns an
// error: infrastructure failures produce a degraded zero-score result so one
// broken file cannot sink the whole batch.
func (s *evaluationService) evaluateSubmission(ctx context.Context, rubric string, stored StoredUpload) models.EvaluationResult {
	ctx, span := s.tracer.Start(ctx, "evaluation.submission")
	span.SetAttributes(attribute.String("evaluation.file_id", stored.FileID))
	defer span.End()

	result := models.EvaluationResult{
		FileRef:        stored.FileID,
		StudentName:    studentNameOrFilename(stored),
		EvaluationType: models.EvaluationTypeFile,
		Succeeded:      true,
	}

	if strings.TrimSpace(stored.Text) == "" {
		result.Succeeded = false
		result.Reasoning = "No evaluable text could be extracted from the submission."
		return result
	}

	pairs := extractQAPairs(ctx, s.caller, s.cache, s.logger, stored.Text)
	if len(pairs) == 0 {
		// Whole-document fallback: grade the submission as one synthetic
		// question so it still receives a judgment.
		pairs = []extract.QAPair{{Question: evaluation.SyntheticQuestion, Answer: stored.Text}}
	}

	judgments := make([]evaluation.Judgment, len(pairs))
	callErrs := make([]*ai.CallError, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(slot int, pair extract.QAPair) {
			defer wg.Done()
			judgments[slot], callErrs[slot] = s.consensus.EvaluateQuestion(ctx, evaluation.QuestionContext{
				Rubric:   rubric,
				Question: pair.Question,
				Answer:   pair.Answer,
				Index:    slot + 1,
			})
		}(i, pair)
	}
	wg.Wait()

	for _, callErr := range callErrs {
		if callErr == nil {
			continue
		}
		span.RecordError(callErr)
		span.SetStatus(codes.Error, string(callErr.Kind))
		s.logger.Warn().
			Str("file_id", stored.FileID).
			Str("kind", string(callErr.Kind)).
			Str("message", callErr.Message).
			Msg("submission evaluation degraded")
		result.Succeeded = false
		result.ScorePercent = 0
		result.Reasoning = unavailableReasoning
		return result
	}

	result.ScorePercent = evaluation.AggregateScore(judgments, s.precision)
	for i, judgment := range judgments {
		credit := judgment.PartialCredit
		result.Details = append(result.Details, models.EvaluationDetail{
			Question:      judgment.Question,
			StudentAnswer: judgment.StudentAnswer,
			CorrectAnswer: judgment.CorrectAnswer,
			IsCorrect:     judgment.IsCorrect,
			PartialCredit: credit,
			MaxMarks:      judgment.EffectiveMaxMarks(),
			Feedback:      judgment.Feedback,
			OrderIndex:    i,
		})
	}
	return result
}

// extractQAPairs asks the model to lift Q&A structure out of the submission,
// falling back to the regex extractor when the model is unavailable. Results
// are cached on the document fingerprint.
func extractQAPairs(ctx context.Context, caller ai.Caller, cache *evaluation.ResultCache, logger zerolog.Logger, text string) []extract.QAPair {
	fingerprint := evaluation.Fingerprint(text)

	if cached, ok := cache.Get(ctx, fingerprint, evaluation.KindQAExtraction); ok {
		var extraction qaExtraction
		if err := json.Unmarshal(cached, &extraction); err == nil {
			return extraction.Pairs
		}
	}

	res := caller.Call(ctx, ai.Request{
		Operation: "qa-extraction",
		Parts:     []ai.Part{ai.TextPart(buildExtractionPrompt(text))},
		Schema:    qaExtractionSchema,
	})
	if !res.OK {
		logger.Warn().
			Str("kind", string(res.Err.Kind)).
			Msg("qa extraction unavailable, using regex fallback")
		return extract.FallbackQAPairs(text)
	}

	var extraction qaExtraction
	if err := res.Decode(&extraction); err != nil {
		return extract.FallbackQAPairs(text)
	}

	cache.Set(ctx, fingerprint, evaluation.KindQAExtraction, extraction)
	return extraction.Pairs
}

func (s *evaluationService) History(ctx context.Context, userID uint, limit, offset int) ([]dto.AssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.history")
	defer span.End()

	assignments, err := s.repo.List(ctx, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto.NewAssignmentResponseSlice(assignments), nil
}

func (s *evaluationService) Assignment(ctx context.Context, id, userID uint) (dto.AssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.get")
	defer span.End()

	assignment, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func studentNameOrFilename(stored StoredUpload) string {
	if stored.StudentName != "" {
		return stored.StudentName
	}
	return stored.Filename
}

func buildExtractionPrompt(text string) string {
	var b strings.Builder
	b.WriteString("### ROLE: You are a precise document parser.\n")
	b.WriteString("Extract every question/answer pair from the student submission below.\n\n")
	b.WriteString("### RULES:\n")
	b.WriteString("- A question is any numbered or labeled prompt (Question 1, Q1, Q:, 1., etc.).\n")
	b.WriteString("- The answer is ALL text between that question and the next one, verbatim. Do not paraphrase, correct, or complete it.\n")
	b.WriteString("- Keep code answers byte-for-byte, including errors.\n")
	b.WriteString("- If the document has no question structure, return an empty pairs array. Do not invent questions.\n")
	b.WriteString("- If the student's name is declared, return it in student_name.\n\n")
	b.WriteString("### SUBMISSION:\n")
	b.WriteString(text)
	return b.String()
}
