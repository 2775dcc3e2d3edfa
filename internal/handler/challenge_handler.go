package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/service"
	"github.com/noah-isme/ctf-go-api/internal/utils"
)

// ChallengeHandler serves competitor challenge endpoints.
type ChallengeHandler struct {
	challenges service.ChallengeService
	instances  service.InstanceService
	flags      service.FlagService
	logger     zerolog.Logger
}

// NewChallengeHandler constructs a challenge handler.
func NewChallengeHandler(challenges service.ChallengeService, instances service.InstanceService, flags service.FlagService, logger zerolog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		instances:  instances,
		flags:      flags,
		logger:     logger.With().Str("component", "challenge_handler").Logger(),
	}
}

// Register attaches the routes. submitGuards run in front of flag submission only.
func (h *ChallengeHandler) Register(router fiber.Router, submitGuards ...fiber.Handler) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/instance", h.startInstance)

	submit := append(append([]fiber.Handler{}, submitGuards...), h.submit)
	router.Post("/:id/submit", submit...)
}

func (h *ChallengeHandler) list(c *fiber.Ctx) error {
	views, err := h.challenges.List(c.UserContext(), userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenges retrieved", views)
}

func (h *ChallengeHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	view, err := h.challenges.GetInfo(c.UserContext(), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenge retrieved", view)
}

func (h *ChallengeHandler) startInstance(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	instance, err := h.instances.Start(c.UserContext(), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "instance started", instance)
}

func (h *ChallengeHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FlagSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.flags.Submit(c.UserContext(), id, payload, service.Submitter{
		UserID: userIDFromContext(c),
		TeamID: teamIDFromContext(c),
		Role:   userRoleFromContext(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	message := "incorrect flag"
	if result.Correct {
		message = "correct flag"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *ChallengeHandler) handleError(c *fiber.Ctx, err error) error {
	if message, ok := validationMessage(err); ok {
		return utils.SendError(c, fiber.StatusBadRequest, message)
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrChallengeNotFound), errors.Is(err, service.ErrInstanceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateInstance):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoDeployment),
		errors.Is(err, service.ErrInstanceRequired),
		errors.Is(err, service.ErrDuplicateContainerName),
		errors.Is(err, service.ErrDuplicateDomain),
		errors.Is(err, service.ErrInvalidContainerName),
		errors.Is(err, service.ErrInvalidResources),
		errors.Is(err, service.ErrInvalidPort),
		errors.Is(err, service.ErrSubdomainTooLong):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOrchestratorUnavailable), errors.Is(err, service.ErrInstanceIDExhausted):
		requestLogger(h.logger, c).Warn().Err(err).Msg("orchestrator unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "challenge deployment is temporarily unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
