package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
)

type NodeHandler struct {
	Nodes *store.NodeConfigs
}

func NewNodeHandler(nodes *store.NodeConfigs) *NodeHandler {
	return &NodeHandler{Nodes: nodes}
}

func (h *NodeHandler) Get(c *fiber.Ctx) error {
	cfg, err := h.Nodes.Snapshot(c.UserContext())
	if err != nil {
		return respondError(c, "node_get", err)
	}
	return utils.Success(c, fiber.StatusOK, cfg)
}

// Update replaces the node flags as a whole.
func (h *NodeHandler) Update(c *fiber.Ctx) error {
	var req models.NodeConfig
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.Nodes.Update(c.UserContext(), req)
	if err != nil {
		return respondError(c, "node_update", err)
	}

	if user := middleware.GetCurrentUser(c); user != nil {
		logger.InfoWithUser(user.ID.String(), "node_config_updated", map[string]interface{}{
			"enable_custodian": cfg.EnableCustodian,
			"escrow":           cfg.Escrow,
			"simplified_login": cfg.SimplifiedLogin,
		})
	}

	return utils.Success(c, fiber.StatusOK, cfg)
}
