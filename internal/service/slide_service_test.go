package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/models"
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/pkg/ai"
)

func newSlideServiceUnderTest(t *testing.T, caller ai.Caller, uploads UploadService) SlideEvaluationService {
	t.Helper()
	db := serviceTestDB(t)
	return NewSlideEvaluationService(
		uploads,
		caller,
		serviceTestCache(t),
		repository.NewAssignmentRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		NewEventPublisher(nil, testLogger()),
		2,
		testLogger(),
	)
}

func TestEvaluateSlidesScoresDeckFromContentCriteria(t *testing.T) {
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		switch req.Operation {
		case "slide-content":
			return jsonResult(t, map[string]interface{}{
				"criteria": map[string]float64{
					"content_quality": 80,
					"structure":       90,
					"relevance":       70,
					"completeness":    60,
				},
				"feedback": "Solid structure, thin on detail in the final section.",
			})
		case "slide-design":
			return jsonResult(t, map[string]interface{}{
				"criteria": map[string]float64{
					"layout":             85,
					"readability":        90,
					"visual_consistency": 80,
					"use_of_media":       75,
				},
				"feedback": "Clean and readable.",
			})
		default:
			return unavailableResult()
		}
	}}
	uploads := uploadStoreStub{files: map[string]StoredUpload{
		"s-1": {FileID: "s-1", Filename: "deck.html", FileType: "html", StudentName: "Bala", Text: "Slide 1: Intro\nSlide 2: Method"},
	}}

	svc := newSlideServiceUnderTest(t, caller, uploads)

	resp, err := svc.EvaluateSlides(context.Background(), 1, dto.EvaluateSlidesRequest{
		Title:       "Project Pitch Deck",
		Description: "Evaluate the pitch against the course brief.",
		FileIDs:     []string{"s-1"},
	})
	require.NoError(t, err)
	require.Equal(t, models.CategorySlideDeck, resp.Category)
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	require.True(t, result.Succeeded)
	// Mean of 80, 90, 70, 60.
	require.Equal(t, 75.0, result.ScorePercent)
	require.Equal(t, "Bala", result.StudentName)
	require.NotNil(t, result.SlideContent)
	require.NotNil(t, result.SlideDesign)
}

func TestEvaluateSlidesSurvivesDesignFailure(t *testing.T) {
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		if req.Operation == "slide-content" {
			return jsonResult(t, map[string]interface{}{
				"criteria": map[string]float64{
					"content_quality": 100,
					"structure":       100,
					"relevance":       100,
					"completeness":    100,
				},
				"feedback": "Excellent.",
			})
		}
		return unavailableResult()
	}}
	uploads := uploadStoreStub{files: map[string]StoredUpload{
		"s-1": {FileID: "s-1", Filename: "deck.txt", FileType: "text", Text: "Slides"},
	}}

	svc := newSlideServiceUnderTest(t, caller, uploads)

	resp, err := svc.EvaluateSlides(context.Background(), 1, dto.EvaluateSlidesRequest{
		Title:       "Deck With Broken Design Eval",
		Description: "Design review is best effort only here.",
		FileIDs:     []string{"s-1"},
	})
	require.NoError(t, err)
	require.True(t, resp.Results[0].Succeeded)
	require.Equal(t, 100.0, resp.Results[0].ScorePercent)
	require.Nil(t, resp.Results[0].SlideDesign)
}

func TestEvaluateSlidesDegradesWhenContentUnavailable(t *testing.T) {
	caller := scriptedCaller{fn: func(ai.Request) ai.Result { return unavailableResult() }}
	uploads := uploadStoreStub{files: map[string]StoredUpload{
		"s-1": {FileID: "s-1", Filename: "deck.txt", FileType: "text", Text: "Slides"},
	}}

	svc := newSlideServiceUnderTest(t, caller, uploads)

	resp, err := svc.EvaluateSlides(context.Background(), 1, dto.EvaluateSlidesRequest{
		Title:       "Unreachable Model Deck",
		Description: "Grade this deck once the model is back.",
		FileIDs:     []string{"s-1"},
	})
	require.NoError(t, err)
	require.False(t, resp.Results[0].Succeeded)
	require.Equal(t, 0.0, resp.Results[0].ScorePercent)
	require.Contains(t, resp.Results[0].Reasoning, "temporarily unavailable")
}

func TestEvaluateSlidesSendsImagesToDesignCall(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	var designParts []ai.Part
	caller := scriptedCaller{fn: func(req ai.Request) ai.Result {
		switch req.Operation {
		case "slide-content":
			return jsonResult(t, map[string]interface{}{
				"criteria": map[string]float64{
					"content_quality": 50, "structure": 50, "relevance": 50, "completeness": 50,
				},
				"feedback": "ok",
			})
		case "slide-design":
			designParts = req.Parts
			return jsonResult(t, map[string]interface{}{
				"criteria": map[string]float64{
					"layout": 50, "readability": 50, "visual_consistency": 50, "use_of_media": 50,
				},
				"feedback": "ok",
			})
		default:
			return unavailableResult()
		}
	}}
	uploads := uploadStoreStub{files: map[string]StoredUpload{
		"s-1": {FileID: "s-1", Filename: "slide1.png", FileType: "image", Raw: png},
		"s-2": {FileID: "s-2", Filename: "notes.txt", FileType: "text", Text: "Speaker notes"},
	}}

	svc := newSlideServiceUnderTest(t, caller, uploads)

	_, err := svc.EvaluateSlides(context.Background(), 1, dto.EvaluateSlidesRequest{
		Title:       "Visual Deck",
		Description: "Review both the slides and the speaker notes.",
		FileIDs:     []string{"s-1", "s-2"},
	})
	require.NoError(t, err)
	require.Len(t, designParts, 2, "expected prompt text plus one image part")
	require.Equal(t, png, designParts[1].ImagePNG)
}
