package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/acadex/acadex-api/internal/config"
	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/evaluation"
)

const defaultConsistencyTrials = 3

// DebugService exposes determinism diagnostics: the active settings, cache
// introspection, and the repeated-trial consistency check.
type DebugService interface {
	DeterminismInfo() dto.DeterminismInfoResponse
	CacheStats(ctx context.Context) (dto.CacheStatsResponse, error)
	ClearCache(ctx context.Context) (dto.CacheClearResponse, error)
	ConsistencyCheck(ctx context.Context, payload dto.ConsistencyCheckRequest) (dto.ConsistencyCheckResponse, error)
}

type debugService struct {
	settings  config.Determinism
	cache     *evaluation.ResultCache
	consensus *evaluation.ConsensusEvaluator
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewDebugService constructs the diagnostics service.
func NewDebugService(
	settings config.Determinism,
	cache *evaluation.ResultCache,
	consensus *evaluation.ConsensusEvaluator,
	validate *validator.Validate,
	logger zerolog.Logger,
) DebugService {
	return &debugService{
		settings:  settings,
		cache:     cache,
		consensus: consensus,
		validator: validate,
		logger:    logger.With().Str("component", "debug_service").Logger(),
		tracer:    otel.Tracer("github.com/acadex/acadex-api/internal/service/debug"),
	}
}

func (s *debugService) DeterminismInfo() dto.DeterminismInfoResponse {
	return dto.DeterminismInfoResponse{
		Model:            s.settings.Model,
		Temperature:      s.settings.Temperature,
		ConsensusEnabled: s.settings.ConsensusEnabled,
		ConsensusCalls:   s.settings.ConsensusCalls,
		CacheEnabled:     s.settings.CacheEnabled,
		CacheTTLDays:     int(s.settings.CacheTTL / (24 * time.Hour)),
		ScorePrecision:   s.settings.ScorePrecision,
	}
}

func (s *debugService) CacheStats(ctx context.Context) (dto.CacheStatsResponse, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return dto.CacheStatsResponse{}, err
	}
	return dto.CacheStatsResponse{
		Enabled:    s.settings.CacheEnabled,
		Entries:    stats.Entries,
		TotalBytes: stats.TotalBytes,
	}, nil
}

func (s *debugService) ClearCache(ctx context.Context) (dto.CacheClearResponse, error) {
	cleared, err := s.cache.Clear(ctx)
	if err != nil {
		return dto.CacheClearResponse{}, err
	}
	s.logger.Info().Int("cleared", cleared).Msg("evaluation cache cleared")
	return dto.CacheClearResponse{Cleared: cleared}, nil
}

// ConsistencyCheck grades the same question repeatedly with caching
// suppressed and reports the observed score spread. A spread beyond the
// allowed variance means the determinism layers are not holding.
func (s *debugService) ConsistencyCheck(ctx context.Context, payload dto.ConsistencyCheckRequest) (dto.ConsistencyCheckResponse, error) {
	ctx, span := s.tracer.Start(ctx, "debug.consistency_check")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ConsistencyCheckResponse{}, err
	}

	trials := payload.Trials
	if trials < 2 {
		trials = defaultConsistencyTrials
	}
	span.SetAttributes(attribute.Int("debug.trials", trials))

	qc := evaluation.QuestionContext{
		Rubric:   payload.Rubric,
		Question: payload.Question,
		Answer:   payload.StudentAnswer,
		Index:    1,
	}

	scores := make([]float64, 0, trials)
	for i := 0; i < trials; i++ {
		judgment, callErr := s.consensus.EvaluateQuestionUncached(ctx, qc)
		if callErr != nil {
			span.RecordError(callErr)
			span.SetStatus(codes.Error, string(callErr.Kind))
			return dto.ConsistencyCheckResponse{}, callErr
		}
		scores = append(scores, evaluation.AggregateScore([]evaluation.Judgment{judgment}, s.settings.ScorePrecision))
	}

	variance := scoreSpread(scores)
	resp := dto.ConsistencyCheckResponse{
		Consistent:     variance <= s.settings.AllowedVariancePct,
		Trials:         trials,
		Scores:         scores,
		VariancePct:    variance,
		AllowedPct:     s.settings.AllowedVariancePct,
		CacheRoundTrip: s.cacheRoundTrip(ctx, qc),
	}

	s.logger.Info().
		Bool("consistent", resp.Consistent).
		Float64("variance_pct", variance).
		Int("trials", trials).
		Msg("consistency check complete")
	return resp, nil
}

// cacheRoundTrip writes and reads back one diagnostic entry.
func (s *debugService) cacheRoundTrip(ctx context.Context, qc evaluation.QuestionContext) bool {
	if !s.settings.CacheEnabled {
		return false
	}

	fingerprint := evaluation.Fingerprint("consistency-probe", qc.Rubric, qc.Question, qc.Answer)
	probe := map[string]string{"probe": "ok"}
	s.cache.Set(ctx, fingerprint, evaluation.KindQAEvaluation, probe)

	raw, ok := s.cache.Get(ctx, fingerprint, evaluation.KindQAEvaluation)
	if !ok {
		return false
	}

	var read map[string]string
	if err := json.Unmarshal(raw, &read); err != nil {
		return false
	}
	return read["probe"] == "ok"
}

func scoreSpread(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	min, max := scores[0], scores[0]
	for _, score := range scores[1:] {
		if score < min {
			min = score
		}
		if score > max {
			max = score
		}
	}
	return max - min
}
