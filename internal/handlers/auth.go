package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"github.com/pquerna/otp/totp"
)

type AuthHandler struct {
	Users    *store.Users
	Accounts *accounts.Manager
}

func NewAuthHandler(users *store.Users, manager *accounts.Manager) *AuthHandler {
	return &AuthHandler{Users: users, Accounts: manager}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	user, err := h.Users.FindByUsername(c.UserContext(), req.Username)
	if err != nil {
		if !errors.Is(err, accounts.ErrNotFound) {
			return respondError(c, "login", err)
		}
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if user.PasswordHash == "" || !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if user.State != models.UserStateEnabled {
		logger.WarnWithUser(user.ID.String(), "login_failed_disabled", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusForbidden, "account disabled")
	}

	if user.TwoFactorEnable {
		if req.Code == "" {
			return utils.Success(c, fiber.StatusOK, fiber.Map{"twoFactorRequired": true})
		}
		secret, err := utils.OpenSecret(user.TwoFactorSecret)
		if err != nil {
			return respondError(c, "login_two_factor", err)
		}
		if !totp.Validate(req.Code, secret) {
			logger.WarnWithUser(user.ID.String(), "login_failed_invalid_code", map[string]interface{}{
				"ip": c.IP(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid two-factor code")
		}
	}

	now := time.Now().UTC()
	if err := h.Users.RecordLogin(c.UserContext(), user.ID, now); err != nil {
		return respondError(c, "login", err)
	}
	user.LastLogin = &now

	token, err := utils.GenerateToken(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":                token,
		"user":                 user,
		"passwordChangeNeeded": user.PasswordChangeNeeded,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type completeResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// CompleteReset serves both the activation and the password reset link.
func (h *AuthHandler) CompleteReset(c *fiber.Ctx) error {
	var req completeResetRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Token) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	if _, err := h.Accounts.CompletePasswordReset(c.UserContext(), req.Token, req.Password); err != nil {
		return respondError(c, "password_reset_complete", err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
