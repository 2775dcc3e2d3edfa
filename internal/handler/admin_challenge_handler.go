package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/service"
	"github.com/noah-isme/ctf-go-api/internal/utils"
)

// AdminChallengeHandler manages the challenge catalogue.
type AdminChallengeHandler struct {
	service service.AdminChallengeService
	logger  zerolog.Logger
}

// NewAdminChallengeHandler constructs the admin challenge handler.
func NewAdminChallengeHandler(svc service.AdminChallengeService, logger zerolog.Logger) *AdminChallengeHandler {
	return &AdminChallengeHandler{
		service: svc,
		logger:  logger.With().Str("component", "admin_challenge_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *AdminChallengeHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/files", h.attach)
}

func (h *AdminChallengeHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenges retrieved", items)
}

func (h *AdminChallengeHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	item, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenge retrieved", item)
}

func (h *AdminChallengeHandler) create(c *fiber.Ctx) error {
	var payload dto.ChallengeUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.service.Create(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "challenge created", item)
}

func (h *AdminChallengeHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ChallengeUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.service.Update(c.UserContext(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenge updated", item)
}

func (h *AdminChallengeHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenge deleted", nil)
}

func (h *AdminChallengeHandler) attach(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	item, err := h.service.AttachFile(c.UserContext(), id, file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment stored", item)
}

func (h *AdminChallengeHandler) handleError(c *fiber.Ctx, err error) error {
	if message, ok := validationMessage(err); ok {
		return utils.SendError(c, fiber.StatusBadRequest, message)
	}

	switch {
	case errors.Is(err, service.ErrChallengeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrChallengeInUse):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUploadsDisabled):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrInvalidChallenge),
		errors.Is(err, service.ErrDuplicateContainerName),
		errors.Is(err, service.ErrDuplicateDomain),
		errors.Is(err, service.ErrInvalidContainerName),
		errors.Is(err, service.ErrInvalidResources),
		errors.Is(err, service.ErrInvalidPort):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
