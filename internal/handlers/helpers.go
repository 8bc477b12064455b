package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestID").(string); ok {
		return id
	}
	return ""
}

// respondError maps account errors onto HTTP answers. Anything unknown is
// logged and reported as a 500 without detail.
func respondError(c *fiber.Ctx, action string, err error) error {
	var validation *accounts.ValidationError
	var keyParse *accounts.KeyParseError

	switch {
	case errors.As(err, &validation):
		return utils.FieldError(c, fiber.StatusBadRequest, string(validation.Field), validation.Error())
	case errors.As(err, &keyParse):
		return utils.FieldError(c, fiber.StatusBadRequest, string(accounts.FieldPGPKey), keyParse.Error())
	case errors.Is(err, accounts.ErrWeakPassword):
		return utils.FieldError(c, fiber.StatusBadRequest, string(accounts.FieldPassword), err.Error())
	case errors.Is(err, accounts.ErrInvalidToken):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, accounts.ErrSelfDeletion), errors.Is(err, accounts.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, accounts.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, accounts.ErrConcurrentModification),
		errors.Is(err, accounts.ErrEditInProgress),
		errors.Is(err, accounts.ErrInvalidState):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	}

	logger.Error(action+"_failed", err, map[string]interface{}{
		"path":       c.Path(),
		"request_id": getRequestID(c),
	})
	return utils.Error(c, fiber.StatusInternalServerError, "internal error")
}
