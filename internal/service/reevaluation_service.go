package service

import (
	"context"
	"errors"
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
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/pkg/ai"
	"github.com/acadex/acadex-api/pkg/extract"
)

// ErrFileNotFound indicates no stored submission matches the file id.
var ErrFileNotFound = errors.New("submission file not found")

// ErrNoStoredText indicates the stored submission has no evaluable text.
var ErrNoStoredText = errors.New("submission has no stored text to re-evaluate")

// ReEvaluationService re-grades one stored submission in place. When the
// rubric is unchanged the fingerprints match and the cache replays the prior
// judgments; a changed rubric produces fresh calls.
type ReEvaluationService interface {
	ReEvaluate(ctx context.Context, payload dto.ReEvaluateRequest) (dto.EvaluationResultResponse, error)
}

type reEvaluationService struct {
	evaluations repository.EvaluationRepository
	caller      ai.Caller
	consensus   *evaluation.ConsensusEvaluator
	cache       *evaluation.ResultCache
	validator   *validator.Validate
	precision   int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewReEvaluationService constructs the re-evaluation orchestrator.
func NewReEvaluationService(
	evaluations repository.EvaluationRepository,
	caller ai.Caller,
	consensus *evaluation.ConsensusEvaluator,
	cache *evaluation.ResultCache,
	validate *validator.Validate,
	precision int,
	logger zerolog.Logger,
) ReEvaluationService {
	return &reEvaluationService{
		evaluations: evaluations,
		caller:      caller,
		consensus:   consensus,
		cache:       cache,
		validator:   validate,
		precision:   precision,
		logger:      logger.With().Str("component", "reevaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/acadex/acadex-api/internal/service/reevaluation"),
	}
}

func (s *reEvaluationService) ReEvaluate(ctx context.Context, payload dto.ReEvaluateRequest) (dto.EvaluationResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.reevaluate")
	span.SetAttributes(attribute.String("evaluation.file_id", payload.FileID))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.EvaluationResultResponse{}, err
	}

	file, err := s.evaluations.FileByFileID(ctx, payload.FileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResultResponse{}, ErrFileNotFound
		}
		span.RecordError(err)
		return dto.EvaluationResultResponse{}, err
	}

	if strings.TrimSpace(file.ExtractedText) == "" {
		return dto.EvaluationResultResponse{}, ErrNoStoredText
	}

	result, err := s.evaluations.ResultForFile(ctx, file.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResultResponse{}, ErrFileNotFound
		}
		span.RecordError(err)
		return dto.EvaluationResultResponse{}, err
	}

	rubric := strings.TrimSpace(payload.Description)

	pairs := extractQAPairs(ctx, s.caller, s.cache, s.logger, file.ExtractedText)
	if len(pairs) == 0 {
		pairs = []extract.QAPair{{Question: evaluation.SyntheticQuestion, Answer: file.ExtractedText}}
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
		return dto.EvaluationResultResponse{}, callErr
	}

	details := make([]models.EvaluationDetail, 0, len(judgments))
	for i, judgment := range judgments {
		details = append(details, models.EvaluationDetail{
			Question:      judgment.Question,
			StudentAnswer: judgment.StudentAnswer,
			CorrectAnswer: judgment.CorrectAnswer,
			IsCorrect:     judgment.IsCorrect,
			PartialCredit: judgment.PartialCredit,
			MaxMarks:      judgment.EffectiveMaxMarks(),
			Feedback:      judgment.Feedback,
			OrderIndex:    i,
		})
	}

	result.ScorePercent = evaluation.AggregateScore(judgments, s.precision)
	result.Succeeded = true
	result.Reasoning = ""

	if err := s.evaluations.ReplaceResult(ctx, &result, details); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.EvaluationResultResponse{}, err
	}

	result.Details = details
	s.logger.Info().
		Str("file_id", payload.FileID).
		Float64("score_percent", result.ScorePercent).
		Msg("re-evaluation complete")

	return dto.NewEvaluationResultResponse(result), nil
}
