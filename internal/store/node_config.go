package store

import (
	"context"
	"fmt"

	"github.com/nodeadmin/backend/internal/models"
	"gorm.io/gorm"
)

// NodeConfigs keeps the single node configuration row.
type NodeConfigs struct {
	db *gorm.DB
}

func NewNodeConfigs(db *gorm.DB) *NodeConfigs {
	return &NodeConfigs{db: db}
}

// Snapshot returns a copy of the node configuration, creating the row with
// defaults on first use.
func (s *NodeConfigs) Snapshot(ctx context.Context) (models.NodeConfig, error) {
	cfg := models.NodeConfig{ID: models.NodeConfigID}
	err := s.db.WithContext(ctx).
		Attrs(models.NodeConfig{DefaultLanguage: "en"}).
		FirstOrCreate(&cfg, models.NodeConfig{ID: models.NodeConfigID}).Error
	if err != nil {
		return models.NodeConfig{}, fmt.Errorf("error loading node config: %w", err)
	}
	return cfg, nil
}

func (s *NodeConfigs) Update(ctx context.Context, cfg models.NodeConfig) (models.NodeConfig, error) {
	cfg.ID = models.NodeConfigID
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if err := s.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return models.NodeConfig{}, fmt.Errorf("error saving node config: %w", err)
	}
	return s.Snapshot(ctx)
}
