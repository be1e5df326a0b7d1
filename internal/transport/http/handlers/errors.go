package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/platform"
	"github.com/ytget/media-taskd/internal/transport/http/dto"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, download.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, download.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, download.ErrInvalidInput),
		errors.Is(err, platform.ErrInvalidPlaylistURL),
		errors.Is(err, platform.ErrEmptyPlaylistID):
		return fiber.StatusBadRequest
	case errors.Is(err, download.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, download.ErrServiceClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error()})
}
