package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/handler"
	"github.com/acadex/acadex-api/pkg/ai"
)

type mockDebugService struct {
	info        dto.DeterminismInfoResponse
	stats       dto.CacheStatsResponse
	cleared     dto.CacheClearResponse
	consistency dto.ConsistencyCheckResponse
	err         error
}

func (m *mockDebugService) DeterminismInfo() dto.DeterminismInfoResponse {
	return m.info
}

func (m *mockDebugService) CacheStats(context.Context) (dto.CacheStatsResponse, error) {
	if m.err != nil {
		return dto.CacheStatsResponse{}, m.err
	}
	return m.stats, nil
}

func (m *mockDebugService) ClearCache(context.Context) (dto.CacheClearResponse, error) {
	if m.err != nil {
		return dto.CacheClearResponse{}, m.err
	}
	return m.cleared, nil
}

func (m *mockDebugService) ConsistencyCheck(context.Context, dto.ConsistencyCheckRequest) (dto.ConsistencyCheckResponse, error) {
	if m.err != nil {
		return dto.ConsistencyCheckResponse{}, m.err
	}
	return m.consistency, nil
}

func newDebugApp(svc *mockDebugService) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/debug", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(42))
		return c.Next()
	})
	handler.NewDebugHandler(svc, zerolog.New(io.Discard)).Register(group)
	return app
}

func TestDebugHandler_Determinism(t *testing.T) {
	svc := &mockDebugService{info: dto.DeterminismInfoResponse{
		Model:          "gpt-4o-2024-08-06",
		Temperature:    0,
		ConsensusCalls: 3,
		CacheTTLDays:   365,
	}}
	app := newDebugApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/debug/determinism", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data dto.DeterminismInfoResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, 3, response.Data.ConsensusCalls)
	require.Equal(t, 365, response.Data.CacheTTLDays)
}

func TestDebugHandler_CacheStatsAndClear(t *testing.T) {
	svc := &mockDebugService{
		stats:   dto.CacheStatsResponse{Enabled: true, Entries: 7},
		cleared: dto.CacheClearResponse{Cleared: 7},
	}
	app := newDebugApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/debug/cache/stats", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var statsResponse struct {
		Data dto.CacheStatsResponse `json:"data"`
	}
	decodeResponse(t, resp, &statsResponse)
	require.Equal(t, 7, statsResponse.Data.Entries)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/debug/cache", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var clearResponse struct {
		Data dto.CacheClearResponse `json:"data"`
	}
	decodeResponse(t, resp, &clearResponse)
	require.Equal(t, 7, clearResponse.Data.Cleared)
}

func TestDebugHandler_ConsistencyCheck(t *testing.T) {
	svc := &mockDebugService{consistency: dto.ConsistencyCheckResponse{
		Consistent:     true,
		Trials:         3,
		Scores:         []float64{100, 100, 100},
		CacheRoundTrip: true,
	}}
	app := newDebugApp(svc)

	resp := postJSON(t, app, "/api/v1/debug/consistency-check", dto.ConsistencyCheckRequest{
		Question:      "What is 2+2?",
		StudentAnswer: "4",
		Rubric:        "Award full credit for the exact sum.",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data dto.ConsistencyCheckResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Data.Consistent)
	require.Len(t, response.Data.Scores, 3)
}

func TestDebugHandler_ConsistencyCheckBackendDown(t *testing.T) {
	svc := &mockDebugService{err: &ai.CallError{Kind: ai.KindUnavailable, Message: "overloaded"}}
	app := newDebugApp(svc)

	resp := postJSON(t, app, "/api/v1/debug/consistency-check", dto.ConsistencyCheckRequest{
		Question:      "What is 2+2?",
		StudentAnswer: "4",
		Rubric:        "Award full credit for the exact sum.",
	})
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
