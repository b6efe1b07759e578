package service

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/evaluation"
	"github.com/acadex/acadex-api/internal/models"
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/pkg/ai"
	"github.com/acadex/acadex-api/pkg/githubfetch"
)

type fetcherStub struct {
	files []githubfetch.RepoFile
	err   error
}

func (f fetcherStub) FetchRepositoryFiles(context.Context, string, int) ([]githubfetch.RepoFile, error) {
	return f.files, f.err
}

func newRepoServiceUnderTest(t *testing.T, caller ai.Caller, fetcher githubfetch.Fetcher, budget RepoBudget) RepoEvaluationService {
	t.Helper()
	db := serviceTestDB(t)
	return NewRepoEvaluationService(
		fetcher,
		caller,
		serviceTestCache(t),
		repository.NewAssignmentRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		NewEventPublisher(nil, testLogger()),
		budget,
		2,
		testLogger(),
	)
}

func TestEvaluateRepositoryGradesAndAnalyzes(t *testing.T) {
	var gradingPrompt string
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		switch req.Operation {
		case "repo-analysis":
			return jsonResult(t, map[string]interface{}{
				"summary":      "A small CLI tool.",
				"technologies": []string{"Go"},
				"structure":    "single package",
			})
		case "repo-grading":
			gradingPrompt = req.Parts[0].Text
			return jsonResult(t, evaluation.Judgment{
				Question:      evaluation.SyntheticQuestion,
				StudentAnswer: "repository source",
				CorrectAnswer: "meets the brief",
				IsCorrect:     true,
				MaxMarks:      1,
				Feedback:      "Implements the required commands.",
			})
		default:
			return unavailableResult()
		}
	}}
	fetcher := fetcherStub{files: []githubfetch.RepoFile{
		{Path: "cmd/main.go", Name: "main.go", Content: "package main"},
		{Path: "go.mod", Name: "go.mod", Content: "module example.com/tool"},
	}}

	svc := newRepoServiceUnderTest(t, caller, fetcher, RepoBudget{})

	resp, err := svc.EvaluateRepository(context.Background(), 1, dto.EvaluateRepoRequest{
		Title:       "CLI Assignment",
		Description: "Build a CLI tool with two subcommands.",
		RepoURL:     "https://github.com/student/tool",
		StudentName: "Charlie",
	})
	require.NoError(t, err)
	require.Equal(t, models.CategoryRepository, resp.Category)
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	require.True(t, result.Succeeded)
	require.Equal(t, 100.0, result.ScorePercent)
	require.Equal(t, "Charlie", result.StudentName)
	require.NotNil(t, result.RepoAnalysis)
	require.Len(t, result.Details, 1)

	require.Contains(t, gradingPrompt, "cmd/main.go")
	require.Contains(t, gradingPrompt, evaluation.SyntheticQuestion)
}

func TestEvaluateRepositoryAppliesCharBudgets(t *testing.T) {
	var gradingPrompt string
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		if req.Operation == "repo-grading" {
			gradingPrompt = req.Parts[0].Text
		}
		return jsonResult(t, evaluation.Judgment{
			Question: evaluation.SyntheticQuestion, StudentAnswer: "x", CorrectAnswer: "x",
			IsCorrect: true, MaxMarks: 1, Feedback: "ok",
		})
	}}
	fetcher := fetcherStub{files: []githubfetch.RepoFile{
		{Path: "a.go", Name: "a.go", Content: strings.Repeat("a", 500)},
		{Path: "b.go", Name: "b.go", Content: strings.Repeat("b", 500)},
		{Path: "c.go", Name: "c.go", Content: strings.Repeat("c", 500)},
	}}

	svc := newRepoServiceUnderTest(t, caller, fetcher, RepoBudget{PerFileChars: 100, TotalChars: 300})

	_, err := svc.EvaluateRepository(context.Background(), 1, dto.EvaluateRepoRequest{
		Title:       "Budget Check",
		Description: "Grade whatever fits within the prompt budget.",
		RepoURL:     "https://github.com/student/big",
	})
	require.NoError(t, err)
	require.Contains(t, gradingPrompt, "[truncated]")
	require.Contains(t, gradingPrompt, "omitted to stay within budget")
	require.NotContains(t, gradingPrompt, "=== FILE: c.go ===")
}

func TestEvaluateRepositoryFetchFailureFailsRequest(t *testing.T) {
	fetcher := fetcherStub{err: context.DeadlineExceeded}
	svc := newRepoServiceUnderTest(t, scriptedCaller{fn: func(ai.Request) ai.Result {
		return unavailableResult()
	}}, fetcher, RepoBudget{})

	_, err := svc.EvaluateRepository(context.Background(), 1, dto.EvaluateRepoRequest{
		Title:       "Unreachable Repo",
		Description: "Grade the linked repository contents.",
		RepoURL:     "https://github.com/student/missing",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch repository")
}

func TestEvaluateRepositoryDegradesWhenGradingUnavailable(t *testing.T) {
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		if req.Operation == "repo-analysis" {
			return jsonResult(t, map[string]interface{}{
				"summary": "tool", "technologies": []string{"Go"}, "structure": "flat",
			})
		}
		return unavailableResult()
	}}
	fetcher := fetcherStub{files: []githubfetch.RepoFile{{Path: "main.go", Name: "main.go", Content: "package main"}}}

	svc := newRepoServiceUnderTest(t, caller, fetcher, RepoBudget{})

	resp, err := svc.EvaluateRepository(context.Background(), 1, dto.EvaluateRepoRequest{
		Title:       "Partial Outage",
		Description: "Grade the repository against the brief.",
		RepoURL:     "https://github.com/student/tool",
	})
	require.NoError(t, err)
	require.False(t, resp.Results[0].Succeeded)
	require.Equal(t, 0.0, resp.Results[0].ScorePercent)
	require.NotNil(t, resp.Results[0].RepoAnalysis, "analysis survives a grading outage")
}
