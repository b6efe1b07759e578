package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/evaluation"
	"github.com/acadex/acadex-api/pkg/ai"
)

func newDebugServiceUnderTest(t *testing.T, caller ai.Caller) DebugService {
	t.Helper()
	settings := determinismSettings()
	settings.CacheTTL = 365 * 24 * time.Hour
	settings.AllowedVariancePct = 2.0
	cache := serviceTestCache(t)
	consensus := evaluation.NewConsensusEvaluator(caller, cache, settings, testLogger())
	return NewDebugService(settings, cache, consensus, validator.New(validator.WithRequiredStructEnabled()), testLogger())
}

func TestDeterminismInfoReflectsSettings(t *testing.T) {
	svc := newDebugServiceUnderTest(t, scriptedCaller{fn: func(ai.Request) ai.Result {
		return unavailableResult()
	}})

	info := svc.DeterminismInfo()
	require.Equal(t, "gpt-4o-2024-08-06", info.Model)
	require.Equal(t, float32(0), info.Temperature)
	require.True(t, info.ConsensusEnabled)
	require.Equal(t, 3, info.ConsensusCalls)
	require.Equal(t, 365, info.CacheTTLDays)
}

func TestConsistencyCheckStableScores(t *testing.T) {
	var calls atomic.Int64
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		calls.Add(1)
		return jsonResult(t, evaluation.Judgment{
			Question: "q", StudentAnswer: "a", CorrectAnswer: "a",
			IsCorrect: true, MaxMarks: 1, Feedback: "ok",
		})
	}}

	svc := newDebugServiceUnderTest(t, caller)

	resp, err := svc.ConsistencyCheck(context.Background(), dto.ConsistencyCheckRequest{
		Question:      "Define polymorphism.",
		StudentAnswer: "Same interface, different behavior.",
		Rubric:        "One mark for a correct definition.",
		Trials:        4,
	})
	require.NoError(t, err)
	require.True(t, resp.Consistent)
	require.Equal(t, 4, resp.Trials)
	require.Len(t, resp.Scores, 4)
	require.Equal(t, 0.0, resp.VariancePct)
	require.True(t, resp.CacheRoundTrip)

	// Caching is suppressed during trials: every trial reaches the model.
	require.EqualValues(t, 4*3, calls.Load(), "4 trials x 3 consensus calls")
}

func TestConsistencyCheckDetectsDrift(t *testing.T) {
	var trial atomic.Int64
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		// Alternate between correct and wrong across consensus rounds so
		// successive trials disagree.
		n := trial.Add(1)
		correct := (n/3)%2 == 0
		return jsonResult(t, evaluation.Judgment{
			Question: "q", StudentAnswer: "a", CorrectAnswer: "b",
			IsCorrect: correct, MaxMarks: 1, Feedback: "varies",
		})
	}}

	svc := newDebugServiceUnderTest(t, caller)

	resp, err := svc.ConsistencyCheck(context.Background(), dto.ConsistencyCheckRequest{
		Question:      "Define polymorphism.",
		StudentAnswer: "Same interface, different behavior.",
		Rubric:        "One mark for a correct definition.",
		Trials:        2,
	})
	require.NoError(t, err)
	require.False(t, resp.Consistent)
	require.Equal(t, 100.0, resp.VariancePct)
}

func TestCacheStatsAndClear(t *testing.T) {
	caller := scriptedCaller{fn: func(ai.Request) ai.Result {
		return jsonResult(t, evaluation.Judgment{
			Question: "q", StudentAnswer: "a", CorrectAnswer: "a",
			IsCorrect: true, MaxMarks: 1, Feedback: "ok",
		})
	}}
	svc := newDebugServiceUnderTest(t, caller)

	// The consistency check's cache round trip leaves one entry behind.
	_, err := svc.ConsistencyCheck(context.Background(), dto.ConsistencyCheckRequest{
		Question:      "Q",
		StudentAnswer: "A",
		Rubric:        "One mark, all or nothing.",
	})
	require.NoError(t, err)

	stats, err := svc.CacheStats(context.Background())
	require.NoError(t, err)
	require.True(t, stats.Enabled)
	require.Equal(t, 1, stats.Entries)
	require.Positive(t, stats.TotalBytes)

	cleared, err := svc.ClearCache(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, cleared.Cleared)

	stats, err = svc.CacheStats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Entries)
}
