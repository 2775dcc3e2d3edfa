package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ctf-go-api/internal/service"
	"github.com/noah-isme/ctf-go-api/internal/utils"
)

// InstanceHandler serves the caller's running instances.
type InstanceHandler struct {
	instances service.InstanceService
	logger    zerolog.Logger
}

// NewInstanceHandler constructs an instance handler.
func NewInstanceHandler(instances service.InstanceService, logger zerolog.Logger) *InstanceHandler {
	return &InstanceHandler{
		instances: instances,
		logger:    logger.With().Str("component", "instance_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *InstanceHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Delete("/:instanceId", h.stop)
}

func (h *InstanceHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, service.ErrUnauthorized.Error())
	}

	instances, err := h.instances.ListForUser(c.UserContext(), userID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "instances retrieved", instances)
}

func (h *InstanceHandler) stop(c *fiber.Ctx) error {
	instanceID := strings.TrimSpace(c.Params("instanceId"))
	if instanceID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid instanceId")
	}

	if err := h.instances.StopForUser(c.UserContext(), instanceID, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "instance stopped", fiber.Map{"id": instanceID})
}

func (h *InstanceHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInstanceForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrOrchestratorUnavailable):
		requestLogger(h.logger, c).Warn().Err(err).Msg("instance teardown failed")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "challenge deployment is temporarily unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
