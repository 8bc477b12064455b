package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/utils"
)

type UsersHandler struct {
	Accounts *accounts.Manager
}

func NewUsersHandler(manager *accounts.Manager) *UsersHandler {
	return &UsersHandler{Accounts: manager}
}

type userView struct {
	User         models.User           `json:"user"`
	Required     []accounts.Field      `json:"required"`
	Editable     []accounts.Field      `json:"editable"`
	Sections     []accounts.Section    `json:"sections"`
	SessionState accounts.SessionState `json:"sessionState"`
	KeyState     accounts.KeyState     `json:"keyState"`
}

type sessionView struct {
	User         *models.User          `json:"user"`
	SessionState accounts.SessionState `json:"sessionState"`
	KeyState     accounts.KeyState     `json:"keyState"`
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	users, total, err := h.Accounts.List(c.UserContext(), actor, accounts.ListOptions{
		Search:     strings.TrimSpace(c.Query("search")),
		Role:       models.UserRole(strings.TrimSpace(c.Query("role"))),
		KeyExpired: c.QueryBool("keyExpired"),
		Offset:     p.Offset,
		Limit:      p.Limit,
	})
	if err != nil {
		return respondError(c, "user_list", err)
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

type createUserRequest struct {
	Role           models.UserRole `json:"role"`
	Username       string          `json:"username"`
	Name           string          `json:"name"`
	PublicName     string          `json:"publicName"`
	Mail           string          `json:"mail"`
	Language       string          `json:"language"`
	Password       string          `json:"password"`
	PGPKeyPublic   string          `json:"pgpKeyPublic"`
	SendActivation bool            `json:"sendActivation"`
}

func (h *UsersHandler) Create(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Accounts.Add(c.UserContext(), actor, accounts.NewUser{
		Role:           req.Role,
		Username:       req.Username,
		Name:           req.Name,
		PublicName:     req.PublicName,
		Mail:           req.Mail,
		Language:       req.Language,
		Password:       req.Password,
		PGPKeyPublic:   req.PGPKeyPublic,
		SendActivation: req.SendActivation,
	})
	if err != nil {
		return respondError(c, "user_create", err)
	}

	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	view, err := h.Accounts.Get(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, "user_get", err)
	}

	return utils.Success(c, fiber.StatusOK, userView{
		User:         view.User,
		Required:     view.Required.Sorted(),
		Editable:     view.Editable.Sorted(),
		Sections:     view.Sections.Sorted(),
		SessionState: view.SessionState,
		KeyState:     view.KeyState,
	})
}

func (h *UsersHandler) Edit(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	session, err := h.Accounts.Edit(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, "user_edit", err)
	}

	return utils.Success(c, fiber.StatusOK, sessionView{
		User:         session.User(),
		SessionState: session.State(),
		KeyState:     session.KeyState(),
	})
}

type saveUserRequest struct {
	Username               *string           `json:"username"`
	Name                   *string           `json:"name"`
	PublicName             *string           `json:"publicName"`
	Mail                   *string           `json:"mail"`
	State                  *models.UserState `json:"state"`
	Password               *string           `json:"password"`
	PasswordChangeNeeded   *bool             `json:"passwordChangeNeeded"`
	Language               *string           `json:"language"`
	Notification           *bool             `json:"notification"`
	PGPKeyPublic           *string           `json:"pgpKeyPublic"`
	PGPKeyRemove           bool              `json:"pgpKeyRemove"`
	ForcefullySelected     *bool             `json:"forcefullySelected"`
	CanPostponeExpiration  *bool             `json:"canPostponeExpiration"`
	CanDeleteSubmission    *bool             `json:"canDeleteSubmission"`
	CanEditGeneralSettings *bool             `json:"canEditGeneralSettings"`
	Role                   *models.UserRole  `json:"role"`
}

func (r saveUserRequest) delta() accounts.Delta {
	return accounts.Delta{
		Username:               r.Username,
		Name:                   r.Name,
		PublicName:             r.PublicName,
		Mail:                   r.Mail,
		State:                  r.State,
		Password:               r.Password,
		PasswordChangeNeeded:   r.PasswordChangeNeeded,
		Language:               r.Language,
		Notification:           r.Notification,
		PGPKeyPublic:           r.PGPKeyPublic,
		PGPKeyRemove:           r.PGPKeyRemove,
		ForcefullySelected:     r.ForcefullySelected,
		CanPostponeExpiration:  r.CanPostponeExpiration,
		CanDeleteSubmission:    r.CanDeleteSubmission,
		CanEditGeneralSettings: r.CanEditGeneralSettings,
	}
}

func (h *UsersHandler) Save(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req saveUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Role != nil {
		return utils.FieldError(c, fiber.StatusBadRequest, string(accounts.FieldRole), "role cannot be changed")
	}

	user, err := h.Accounts.Save(c.UserContext(), actor, userID, req.delta())
	if err != nil {
		return respondError(c, "user_save", err)
	}

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) Cancel(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Accounts.Cancel(actor, userID); err != nil {
		return respondError(c, "user_cancel", err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"sessionState": accounts.StateViewing})
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Accounts.Delete(c.UserContext(), actor, userID); err != nil {
		return respondError(c, "user_delete", err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

func (h *UsersHandler) DisableTwoFactor(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Accounts.Disable2FA(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, "two_factor_disable", err)
	}

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) ToggleEscrow(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Accounts.ToggleEscrow(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, "escrow_toggle", err)
	}

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) SendPasswordReset(c *fiber.Ctx) error {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	kind, err := h.Accounts.SendPasswordReset(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, "password_reset_issue", err)
	}

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"kind": kind})
}
