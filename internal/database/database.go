package database

import (
	"errors"
	"fmt"

	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/config"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema and the single node configuration row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.NodeConfig{},
	); err != nil {
		return err
	}

	// Blank usernames are allowed for simplified-login recipients.
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username)) WHERE username <> ''",
	).Error; err != nil {
		return fmt.Errorf("error creating username index: %w", err)
	}

	cfg := models.NodeConfig{ID: models.NodeConfigID, DefaultLanguage: "en"}
	return db.FirstOrCreate(&cfg, models.NodeConfig{ID: models.NodeConfigID}).Error
}

var ErrSeedPasswordRequired = errors.New("SEED_ADMIN_PASSWORD is required to seed the first admin")

// SeedAdminUser creates the first admin when the users table is empty. The
// seeded password must pass the password policy and has to be changed on
// first login.
func SeedAdminUser(db *gorm.DB, seed config.SeedConfig) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	if seed.AdminPassword == "" {
		return ErrSeedPasswordRequired
	}
	if err := accounts.CheckPassword(seed.AdminPassword); err != nil {
		return fmt.Errorf("seed admin password: %w", err)
	}

	hash, err := utils.HashPassword(seed.AdminPassword)
	if err != nil {
		return err
	}

	admin := models.User{
		Role:                 models.UserRoleAdmin,
		Username:             seed.AdminUsername,
		Name:                 "System Admin",
		PublicName:           "System Admin",
		Mail:                 seed.AdminMail,
		State:                models.UserStateEnabled,
		PasswordHash:         hash,
		PasswordChangeNeeded: true,
		Language:             "en",
		Notification:         true,
		Version:              1,
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Info("admin_seeded", map[string]interface{}{
		"user_id":  admin.ID.String(),
		"username": admin.Username,
	})
	return nil
}
