package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/middleware"
)

type Handlers struct {
	Auth      *AuthHandler
	Users     *UsersHandler
	TwoFactor *TwoFactorHandler
	Node      *NodeHandler
}

func RegisterRoutes(app *fiber.App, h Handlers, authMiddleware *middleware.AuthMiddleware) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", h.Auth.Login)
	authRoutes.Post("/reset", h.Auth.CompleteReset)
	authRoutes.Get("/me", authMiddleware.RequireAuth, h.Auth.Me)
	authRoutes.Post("/2fa/setup", authMiddleware.RequireAuth, h.TwoFactor.Setup)
	authRoutes.Post("/2fa/verify", authMiddleware.RequireAuth, h.TwoFactor.Verify)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", h.Users.List)
	userRoutes.Post("/", h.Users.Create)
	userRoutes.Get("/:id", h.Users.Get)
	userRoutes.Put("/:id", h.Users.Save)
	userRoutes.Delete("/:id", h.Users.Delete)
	userRoutes.Post("/:id/edit", h.Users.Edit)
	userRoutes.Post("/:id/cancel", h.Users.Cancel)
	userRoutes.Post("/:id/disable-2fa", h.Users.DisableTwoFactor)
	userRoutes.Post("/:id/escrow", h.Users.ToggleEscrow)
	userRoutes.Post("/:id/reset-password", h.Users.SendPasswordReset)

	nodeRoutes := api.Group("/node", authMiddleware.RequireAuth, middleware.AdminOnly)
	nodeRoutes.Get("/", h.Node.Get)
	nodeRoutes.Put("/", h.Node.Update)
}
