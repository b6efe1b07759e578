package service

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/acadex/acadex-api/pkg/githubfetch"
)

// repoAnalysisSchema describes the structured repository survey.
var repoAnalysisSchema = ai.MustCompileSchema("repo_analysis", `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"technologies": {"type": "array", "items": {"type": "string"}},
		"structure": {"type": "string"},
		"code_quality_notes": {"type": "string"}
	},
	"required": ["summary", "technologies", "structure"]
}`)

type repoAnalysis struct {
	Summary          string   `json:"summary"`
	Technologies     []string `json:"technologies"`
	Structure        string   `json:"structure"`
	CodeQualityNotes string   `json:"code_quality_notes,omitempty"`
}

// RepoEvaluationService grades GitHub repository submissions.
type RepoEvaluationService interface {
	EvaluateRepository(ctx context.Context, userID uint, payload dto.EvaluateRepoRequest) (dto.AssignmentResponse, error)
}

// RepoBudget bounds how much source is sent to the model. Budgets keep the
// prompt, and therefore the fingerprint, stable for large repositories.
type RepoBudget struct {
	FileCeiling  int
	PerFileChars int
	TotalChars   int
}

type repoEvaluationService struct {
	fetcher   githubfetch.Fetcher
	caller    ai.Caller
	cache     *evaluation.ResultCache
	repo      repository.AssignmentRepository
	validator *validator.Validate
	events    *EventPublisher
	budget    RepoBudget
	precision int
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRepoEvaluationService constructs the repository orchestrator.
func NewRepoEvaluationService(
	fetcher githubfetch.Fetcher,
	caller ai.Caller,
	cache *evaluation.ResultCache,
	repo repository.AssignmentRepository,
	validate *validator.Validate,
	events *EventPublisher,
	budget RepoBudget,
	precision int,
	logger zerolog.Logger,
) RepoEvaluationService {
	if budget.FileCeiling <= 0 {
		budget.FileCeiling = 100
	}
	if budget.PerFileChars <= 0 {
		budget.PerFileChars = 15000
	}
	if budget.TotalChars <= 0 {
		budget.TotalChars = 100000
	}
	return &repoEvaluationService{
		fetcher:   fetcher,
		caller:    caller,
		cache:     cache,
		repo:      repo,
		validator: validate,
		events:    events,
		budget:    budget,
		precision: precision,
		logger:    logger.With().Str("component", "repo_service").Logger(),
		tracer:    otel.Tracer("github.com/acadex/acadex-api/internal/service/repo"),
	}
}

func (s *repoEvaluationService) EvaluateRepository(ctx context.Context, userID uint, payload dto.EvaluateRepoRequest) (dto.AssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.repository")
	span.SetAttributes(
		attribute.Int64("evaluation.user_id", int64(userID)),
		attribute.String("evaluation.repo_url", payload.RepoURL),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssignmentResponse{}, err
	}

	rubric := strings.TrimSpace(payload.Description)

	files, err := s.fetcher.FetchRepositoryFiles(ctx, payload.RepoURL, s.budget.FileCeiling)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch_failed")
		return dto.AssignmentResponse{}, fmt.Errorf("fetch repository: %w", err)
	}

	listing := s.buildListing(files)
	span.SetAttributes(
		attribute.Int("evaluation.repo_files", len(files)),
		attribute.Int("evaluation.listing_chars", len(listing)),
	)

	result := models.EvaluationResult{
		StudentName:    studentNameOrRepo(payload),
		EvaluationType: models.EvaluationTypeRepository,
		Succeeded:      true,
	}

	analysis, analysisErr := s.analyze(ctx, payload.RepoURL, listing)
	if analysisErr != nil {
		s.logger.Warn().
			Str("kind", string(analysisErr.Kind)).
			Str("repo_url", payload.RepoURL).
			Msg("repository analysis unavailable")
	} else if raw, err := json.Marshal(analysis); err == nil {
		result.RepoAnalysis = datatypes.JSON(raw)
	}

	judgment, gradeErr := s.grade(ctx, rubric, payload.RepoURL, listing)
	if gradeErr != nil {
		span.RecordError(gradeErr)
		span.SetStatus(codes.Error, string(gradeErr.Kind))
		result.Succeeded = false
		result.ScorePercent = 0
		result.Reasoning = unavailableReasoning
	} else {
		result.ScorePercent = evaluation.AggregateScore([]evaluation.Judgment{judgment}, s.precision)
		result.Reasoning = judgment.Feedback
		result.Details = []models.EvaluationDetail{{
			Question:      judgment.Question,
			StudentAnswer: fmt.Sprintf("Repository: %s (%d files)", payload.RepoURL, len(files)),
			CorrectAnswer: judgment.CorrectAnswer,
			IsCorrect:     judgment.IsCorrect,
			PartialCredit: judgment.PartialCredit,
			MaxMarks:      judgment.EffectiveMaxMarks(),
			Feedback:      judgment.Feedback,
			OrderIndex:    0,
		}}
	}

	assignment := models.Assignment{
		UserID:      userID,
		Title:       strings.TrimSpace(payload.Title),
		Description: rubric,
		Status:      models.AssignmentStatusCompleted,
		Category:    models.CategoryRepository,
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

// buildListing renders fetched files into one bounded source listing. Files
// arrive sorted by path, so the listing and its fingerprint are stable for
// the same commit state.
func (s *repoEvaluationService) buildListing(files []githubfetch.RepoFile) string {
	var b strings.Builder
	total := 0
	for _, file := range files {
		content := file.Content
		if len(content) > s.budget.PerFileChars {
			content = content[:s.budget.PerFileChars] + "\n... [truncated]"
		}
		entry := fmt.Sprintf("=== FILE: %s ===\n%s\n\n", file.Path, content)
		if total+len(entry) > s.budget.TotalChars {
			b.WriteString(fmt.Sprintf("=== %d more file(s) omitted to stay within budget ===\n", remaining(files, file.Path)))
			break
		}
		b.WriteString(entry)
		total += len(entry)
	}
	return b.String()
}

func remaining(files []githubfetch.RepoFile, fromPath string) int {
	for i, file := range files {
		if file.Path == fromPath {
			return len(files) - i
		}
	}
	return 0
}

func (s *repoEvaluationService) analyze(ctx context.Context, repoURL, listing string) (repoAnalysis, *ai.CallError) {
	fingerprint := evaluation.Fingerprint(repoURL, listing)
	if cached, ok := s.cache.Get(ctx, fingerprint, evaluation.KindRepoAnalysis); ok {
		var analysis repoAnalysis
		if err := json.Unmarshal(cached, &analysis); err == nil {
			return analysis, nil
		}
	}

	res := s.caller.Call(ctx, ai.Request{
		Operation: "repo-analysis",
		Parts:     []ai.Part{ai.TextPart(buildRepoAnalysisPrompt(repoURL, listing))},
		Schema:    repoAnalysisSchema,
	})
	if !res.OK {
		return repoAnalysis{}, res.Err
	}

	var analysis repoAnalysis
	if err := res.Decode(&analysis); err != nil {
		return repoAnalysis{}, &ai.CallError{Kind: ai.KindParseError, Message: "failed to decode repo analysis", Raw: err.Error()}
	}

	s.cache.Set(ctx, fingerprint, evaluation.KindRepoAnalysis, analysis)
	return analysis, nil
}

// grade judges the whole repository as one synthetic question. The full
// prompt, rubric and source listing included, forms the cache fingerprint.
func (s *repoEvaluationService) grade(ctx context.Context, rubric, repoURL, listing string) (evaluation.Judgment, *ai.CallError) {
	prompt := evaluation.JudgmentPrompt(evaluation.QuestionContext{
		Rubric:   rubric,
		Question: evaluation.SyntheticQuestion,
		Answer:   listing,
		Index:    1,
	})

	fingerprint := evaluation.Fingerprint(repoURL, prompt)
	if cached, ok := s.cache.Get(ctx, fingerprint, evaluation.KindRepoGrading); ok {
		var judgment evaluation.Judgment
		if err := json.Unmarshal(cached, &judgment); err == nil {
			return judgment, nil
		}
	}

	res := s.caller.Call(ctx, ai.Request{
		Operation: "repo-grading",
		Parts:     []ai.Part{ai.TextPart(prompt)},
		Schema:    evaluation.JudgmentSchema(),
	})
	if !res.OK {
		return evaluation.Judgment{}, res.Err
	}

	var judgment evaluation.Judgment
	if err := res.Decode(&judgment); err != nil {
		return evaluation.Judgment{}, &ai.CallError{Kind: ai.KindParseError, Message: "failed to decode repo judgment", Raw: err.Error()}
	}

	s.cache.Set(ctx, fingerprint, evaluation.KindRepoGrading, judgment)
	return judgment, nil
}

func studentNameOrRepo(payload dto.EvaluateRepoRequest) string {
	if name := strings.TrimSpace(payload.StudentName); name != "" {
		return name
	}
	return payload.RepoURL
}

func buildRepoAnalysisPrompt(repoURL, listing string) string {
	var b strings.Builder
	b.WriteString("### ROLE: You are a senior code reviewer.\n")
	b.WriteString("Survey the repository below and describe what it is and how it is built.\n\n")
	b.WriteString("### REPOSITORY: ")
	b.WriteString(repoURL)
	b.WriteString("\n\n### SOURCE:\n")
	b.WriteString(listing)
	b.WriteString("\n\n### OUTPUT:\n")
	b.WriteString("Return ONLY a JSON object with keys: summary, technologies, structure, code_quality_notes.\n")
	return b.String()
}
