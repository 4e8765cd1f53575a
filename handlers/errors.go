package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"memory-match/game"
	"memory-match/services"
	"memory-match/store"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidConfig):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrMatchFinished):
		return fiber.StatusConflict
	}
	kind, ok := game.KindOf(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch kind {
	case game.KindValidation:
		return fiber.StatusBadRequest
	case game.KindTurn:
		return fiber.StatusForbidden
	case game.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	var ge *game.Error
	if errors.As(err, &ge) {
		body["code"] = ge.Code
		body["kind"] = ge.Kind
	}
	if status == fiber.StatusInternalServerError {
		if _, isGameErr := game.KindOf(err); !isGameErr {
			body["error"] = "internal error"
		}
	}
	return c.Status(status).JSON(body)
}
