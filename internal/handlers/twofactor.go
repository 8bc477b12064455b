package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "NodeAdmin"

// TwoFactorHandler lets a signed-in user enroll in TOTP. Turning it off is
// an admin action on the users API.
type TwoFactorHandler struct {
	Users *store.Users
}

func NewTwoFactorHandler(users *store.Users) *TwoFactorHandler {
	return &TwoFactorHandler{Users: users}
}

func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.TwoFactorEnable {
		return utils.Error(c, fiber.StatusConflict, "two-factor authentication is already enabled")
	}

	accountName := user.Username
	if accountName == "" {
		accountName = user.Mail
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate TOTP secret")
	}

	sealed, err := utils.SealSecret(key.Secret())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to encrypt TOTP secret")
	}

	if err := h.Users.SetTwoFactor(c.UserContext(), user.ID, sealed, false); err != nil {
		return respondError(c, "two_factor_setup", err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": key.Secret(),
		"qrUri":  key.URL(),
	})
}

type verifyTwoFactorRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) Verify(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if user.TwoFactorEnable {
		return utils.Error(c, fiber.StatusConflict, "two-factor authentication is already enabled")
	}
	if user.TwoFactorSecret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor setup not started")
	}

	secret, err := utils.OpenSecret(user.TwoFactorSecret)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to read TOTP secret")
	}
	if !totp.Validate(req.Code, secret) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid TOTP code")
	}

	if err := h.Users.SetTwoFactor(c.UserContext(), user.ID, user.TwoFactorSecret, true); err != nil {
		return respondError(c, "two_factor_verify", err)
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_enabled", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"twoFactorEnable": true})
}
