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

// EvaluationHandler exposes the grading endpoints.
type EvaluationHandler struct {
	files  service.EvaluationService
	slides service.SlideEvaluationService
	repos  service.RepoEvaluationService
	redo   service.ReEvaluationService
	logger zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(
	files service.EvaluationService,
	slides service.SlideEvaluationService,
	repos service.RepoEvaluationService,
	redo service.ReEvaluationService,
	logger zerolog.Logger,
) *EvaluationHandler {
	return &EvaluationHandler{
		files:  files,
		slides: slides,
		repos:  repos,
		redo:   redo,
		logger: logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/evaluate", h.evaluateFiles)
	router.Post("/evaluate/slides", h.evaluateSlides)
	router.Post("/evaluate/repository", h.evaluateRepository)
	router.Post("/re-evaluate", h.reEvaluate)
	router.Get("/assignments", h.history)
	router.Get("/assignments/:id", h.assignment)
}

func (h *EvaluationHandler) evaluateFiles(c *fiber.Ctx) error {
	var payload dto.EvaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.files.EvaluateFiles(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "evaluation complete", resp)
}

func (h *EvaluationHandler) evaluateSlides(c *fiber.Ctx) error {
	var payload dto.EvaluateSlidesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.slides.EvaluateSlides(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "slide evaluation complete", resp)
}

func (h *EvaluationHandler) evaluateRepository(c *fiber.Ctx) error {
	var payload dto.EvaluateRepoRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.repos.EvaluateRepository(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "repository evaluation complete", resp)
}

func (h *EvaluationHandler) reEvaluate(c *fiber.Ctx) error {
	var payload dto.ReEvaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.redo.ReEvaluate(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "re-evaluation complete", resp)
}

func (h *EvaluationHandler) history(c *fiber.Ctx) error {
	limit := parseQueryInt(c, "limit", 20)
	offset := parseQueryInt(c, "offset", 0)

	resp, err := h.files.History(c.Context(), userIDFromContext(c), limit, offset)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluation history retrieved", resp)
}

func (h *EvaluationHandler) assignment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.files.Assignment(c.Context(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", resp)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrUploadNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoStoredText):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	var callErr *ai.CallError
	if errors.As(err, &callErr) {
		switch callErr.Kind {
		case ai.KindConfig:
			return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation backend is not configured")
		case ai.KindParseError:
			return utils.SendError(c, fiber.StatusBadGateway, "model returned an unreadable response")
		default:
			return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation backend is unavailable")
		}
	}

	h.logger.Error().Err(err).Msg("evaluation request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
