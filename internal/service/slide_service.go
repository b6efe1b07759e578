package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/evaluation"
	"github.com/acadex/acadex-api/internal/models"
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/pkg/ai"
)

// maxDesignImages caps how many slide images ride along on the design call.
const maxDesignImages = 10

// slideContentSchema scores the deck's substance on 0-100 criteria.
var slideContentSchema = ai.MustCompileSchema("slide_content", `{
	"type": "object",
	"properties": {
		"criteria": {
			"type": "object",
			"properties": {
				"content_quality": {"type": "number", "minimum": 0, "maximum": 100},
				"structure": {"type": "number", "minimum": 0, "maximum": 100},
				"relevance": {"type": "number", "minimum": 0, "maximum": 100},
				"completeness": {"type": "number", "minimum": 0, "maximum": 100}
			},
			"required": ["content_quality", "structure", "relevance", "completeness"]
		},
		"feedback": {"type": "string"}
	},
	"required": ["criteria", "feedback"]
}`)

// slideDesignSchema scores the deck's visual craft on 0-100 criteria.
var slideDesignSchema = ai.MustCompileSchema("slide_design", `{
	"type": "object",
	"properties": {
		"criteria": {
			"type": "object",
			"properties": {
				"layout": {"type": "number", "minimum": 0, "maximum": 100},
				"readability": {"type": "number", "minimum": 0, "maximum": 100},
				"visual_consistency": {"type": "number", "minimum": 0, "maximum": 100},
				"use_of_media": {"type": "number", "minimum": 0, "maximum": 100}
			},
			"required": ["layout", "readability", "visual_consistency", "use_of_media"]
		},
		"feedback": {"type": "string"}
	},
	"required": ["criteria", "feedback"]
}`)

type criterionReport struct {
	Criteria map[string]float64 `json:"criteria"`
	Feedback string             `json:"feedback"`
}

// SlideEvaluationService grades slide-deck submissions on content and design.
type SlideEvaluationService interface {
	EvaluateSlides(ctx context.Context, userID uint, payload dto.EvaluateSlidesRequest) (dto.AssignmentResponse, error)
}

type slideEvaluationService struct {
	uploads   UploadService
	caller    ai.Caller
	cache     *evaluation.ResultCache
	repo      repository.AssignmentRepository
	validator *validator.Validate
	events    *EventPublisher
	precision int
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewSlideEvaluationService constructs the slide-deck orchestrator.
func NewSlideEvaluationService(
	uploads UploadService,
	caller ai.Caller,
	cache *evaluation.ResultCache,
	repo repository.AssignmentRepository,
	validate *validator.Validate,
	events *EventPublisher,
	precision int,
	logger zerolog.Logger,
) SlideEvaluationService {
	return &slideEvaluationService{
		uploads:   uploads,
		caller:    caller,
		cache:     cache,
		repo:      repo,
		validator: validate,
		events:    events,
		precision: precision,
		logger:    logger.With().Str("component", "slide_service").Logger(),
		tracer:    otel.Tracer("github.com/acadex/acadex-api/internal/service/slides"),
	}
}

func (s *slideEvaluationService) EvaluateSlides(ctx context.Context, userID uint, payload dto.EvaluateSlidesRequest) (dto.AssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.slides")
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

	rubric := strings.TrimSpace(payload.Description)

	var (
		textParts []string
		images    [][]byte
		files     []models.AssignmentFile
		student   string
	)
	for _, fileID := range payload.FileIDs {
		stored, err := s.uploads.Get(ctx, fileID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload_lookup_failed")
			return dto.AssignmentResponse{}, err
		}
		if stored.Text != "" {
			textParts = append(textParts, stored.Text)
		}
		if stored.FileType == "image" && len(images) < maxDesignImages {
			images = append(images, stored.Raw)
		}
		if student == "" {
			student = stored.StudentName
		}
		files = append(files, models.AssignmentFile{
			FileID:        stored.FileID,
			Filename:      stored.Filename,
			ExtractedText: stored.Text,
			StudentName:   stored.StudentName,
			FileType:      stored.FileType,
			FileSize:      stored.FileSize,
			UploadedAt:    stored.UploadedAt,
		})
	}

	deckText := strings.Join(textParts, "\n\n--- slide break ---\n\n")

	result := models.EvaluationResult{
		StudentName:    student,
		EvaluationType: models.EvaluationTypeSlideDeck,
		Succeeded:      true,
	}
	if len(files) > 0 {
		result.FileRef = files[0].FileID
	}
	if result.StudentName == "" && len(files) > 0 {
		result.StudentName = files[0].Filename
	}

	content, contentErr := s.contentReport(ctx, rubric, deckText)
	design, designErr := s.designReport(ctx, rubric, deckText, payload.FileIDs, images)

	if contentErr != nil {
		span.RecordError(contentErr)
		span.SetStatus(codes.Error, string(contentErr.Kind))
		result.Succeeded = false
		result.Reasoning = unavailableReasoning
	} else {
		result.ScorePercent = meanCriteria(content.Criteria, s.precision)
		result.Reasoning = content.Feedback
		if raw, err := json.Marshal(content); err == nil {
			result.SlideContent = datatypes.JSON(raw)
		}
	}

	if designErr != nil {
		s.logger.Warn().
			Str("kind", string(designErr.Kind)).
			Msg("slide design evaluation unavailable")
	} else if raw, err := json.Marshal(design); err == nil {
		result.SlideDesign = datatypes.JSON(raw)
	}

	assignment := models.Assignment{
		UserID:      userID,
		Title:       strings.TrimSpace(payload.Title),
		Description: rubric,
		Status:      models.AssignmentStatusCompleted,
		Category:    models.CategorySlideDeck,
		Files:       files,
		Results:     []models.EvaluationResult{result},
	}

	if err := s.repo.CreateGraded(ctx, &assignment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.AssignmentResponse{}, err
	}

	s.events.EvaluationCompleted(ctx, assignment)
	recordEvaluationMetrics(assignment)
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *slideEvaluationService) contentReport(ctx context.Context, rubric, deckText string) (criterionReport, *ai.CallError) {
	fingerprint := evaluation.Fingerprint(rubric, deckText)
	if cached, ok := s.cache.Get(ctx, fingerprint, evaluation.KindSlideContent); ok {
		var report criterionReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return report, nil
		}
	}

	res := s.caller.Call(ctx, ai.Request{
		Operation: "slide-content",
		Parts:     []ai.Part{ai.TextPart(buildSlideContentPrompt(rubric, deckText))},
		Schema:    slideContentSchema,
	})
	if !res.OK {
		return criterionReport{}, res.Err
	}

	var report criterionReport
	if err := res.Decode(&report); err != nil {
		return criterionReport{}, &ai.CallError{Kind: ai.KindParseError, Message: "failed to decode content report", Raw: err.Error()}
	}

	s.cache.Set(ctx, fingerprint, evaluation.KindSlideContent, report)
	return report, nil
}

// designReport grades visual quality. Slide images go to the vision model
// when present; otherwise the judgment falls back to the extracted text.
func (s *slideEvaluationService) designReport(ctx context.Context, rubric, deckText string, fileIDs []string, images [][]byte) (criterionReport, *ai.CallError) {
	fingerprint := evaluation.Fingerprint(append([]string{rubric, deckText}, fileIDs...)...)
	if cached, ok := s.cache.Get(ctx, fingerprint, evaluation.KindSlideDesign); ok {
		var report criterionReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return report, nil
		}
	}

	parts := []ai.Part{ai.TextPart(buildSlideDesignPrompt(rubric, len(images) > 0, deckText))}
	for _, img := range images {
		parts = append(parts, ai.ImagePart(img))
	}

	res := s.caller.Call(ctx, ai.Request{
		Operation: "slide-design",
		Parts:     parts,
		Schema:    slideDesignSchema,
	})
	if !res.OK {
		return criterionReport{}, res.Err
	}

	var report criterionReport
	if err := res.Decode(&report); err != nil {
		return criterionReport{}, &ai.CallError{Kind: ai.KindParseError, Message: "failed to decode design report", Raw: err.Error()}
	}

	s.cache.Set(ctx, fingerprint, evaluation.KindSlideDesign, report)
	return report, nil
}

// meanCriteria averages criterion scores into the deck percentage.
func meanCriteria(criteria map[string]float64, precision int) float64 {
	if len(criteria) == 0 {
		return 0.0
	}
	var sum float64
	for _, score := range criteria {
		sum += score
	}
	return roundScore(sum/float64(len(criteria)), precision)
}

func roundScore(value float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}

func buildSlideContentPrompt(rubric, deckText string) string {
	var b strings.Builder
	b.WriteString("### ROLE: You are a strict presentation grader.\n")
	b.WriteString("Score the slide deck's CONTENT against the assignment rubric.\n\n")
	b.WriteString("### RUBRIC:\n")
	b.WriteString(rubric)
	b.WriteString("\n\n### SLIDE TEXT:\n")
	b.WriteString(deckText)
	b.WriteString("\n\n### SCORING:\n")
	b.WriteString("- Score each criterion 0-100: content_quality, structure, relevance, completeness.\n")
	b.WriteString("- The same deck MUST always receive the same scores. Do not vary.\n")
	b.WriteString("- Return ONLY a JSON object with keys: criteria, feedback.\n")
	return b.String()
}

func buildSlideDesignPrompt(rubric string, hasImages bool, deckText string) string {
	var b strings.Builder
	b.WriteString("### ROLE: You are a strict presentation design reviewer.\n")
	b.WriteString("Score the slide deck's VISUAL DESIGN.\n\n")
	b.WriteString("### RUBRIC:\n")
	b.WriteString(rubric)
	if hasImages {
		b.WriteString("\n\n### SLIDES: attached as images, in order.\n")
	} else {
		b.WriteString("\n\n### SLIDE TEXT (no images available):\n")
		b.WriteString(deckText)
	}
	b.WriteString("\n\n### SCORING:\n")
	b.WriteString("- Score each criterion 0-100: layout, readability, visual_consistency, use_of_media.\n")
	b.WriteString("- The same deck MUST always receive the same scores. Do not vary.\n")
	b.WriteString("- Return ONLY a JSON object with keys: criteria, feedback.\n")
	return b.String()
}
