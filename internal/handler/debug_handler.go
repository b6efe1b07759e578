package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/internal/service"
	"github.com/acadex/acadex-api/internal/utils"
	"github.com/acadex/acadex-api/pkg/ai"
)

// DebugHandler exposes determinism diagnostics.
type DebugHandler struct {
	service service.DebugService
	logger  zerolog.Logger
}

// NewDebugHandler builds a debug handler instance.
func NewDebugHandler(service service.DebugService, logger zerolog.Logger) *DebugHandler {
	return &DebugHandler{
		service: service,
		logger:  logger.With().Str("component", "debug_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *DebugHandler) Register(router fiber.Router) {
	router.Get("/determinism", h.determinism)
	router.Get("/cache/stats", h.cacheStats)
	router.Delete("/cache", h.clearCache)
	router.Post("/consistency-check", h.consistencyCheck)
}

func (h *DebugHandler) determinism(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "determinism settings", h.service.DeterminismInfo())
}

func (h *DebugHandler) cacheStats(c *fiber.Ctx) error {
	stats, err := h.service.CacheStats(c.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("cache stats failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to read cache stats")
	}
	return utils.SendSuccess(c, "cache stats", stats)
}

func (h *DebugHandler) clearCache(c *fiber.Ctx) error {
	cleared, err := h.service.ClearCache(c.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("cache clear failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to clear cache")
	}
	return utils.SendSuccess(c, "cache cleared", cleared)
}

func (h *DebugHandler) consistencyCheck(c *fiber.Ctx) error {
	var payload dto.ConsistencyCheckRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.ConsistencyCheck(c.Context(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		var callErr *ai.CallError
		if errors.As(err, &callErr) {
			return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation backend is unavailable")
		}
		h.logger.Error().Err(err).Msg("consistency check failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "consistency check failed")
	}

	return utils.SendSuccess(c, "consistency check complete", resp)
}
