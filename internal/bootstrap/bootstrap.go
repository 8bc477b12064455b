package bootstrap

import (
	"context"
	"time"

	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/config"
	"github.com/nodeadmin/backend/internal/database"
	"github.com/nodeadmin/backend/internal/mail"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/internal/tokens"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services holds everything the server and the CLI share.
type Services struct {
	DB       *gorm.DB
	Users    *store.Users
	Nodes    *store.NodeConfigs
	Accounts *accounts.Manager

	mailer *mail.Dispatcher
	redis  *redis.Client
	cancel context.CancelFunc
}

// New connects to the database and wires the account manager. Consumed
// reset tokens go to redis when configured, to process memory otherwise.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureSecretKey(cfg.Security.EncryptionSecret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	s := &Services{
		DB:    db,
		Users: store.NewUsers(db),
		Nodes: store.NewNodeConfigs(db),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	var registry accounts.TokenRegistry
	if cfg.Redis.Addr != "" {
		client, err := tokens.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			cancel()
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		s.redis = client
		registry = tokens.NewRedis(client)
		logger.Info("token_registry_redis", map[string]interface{}{"addr": cfg.Redis.Addr})
	} else {
		memory := tokens.NewMemory()
		go memory.Run(runCtx, 10*time.Minute)
		registry = memory
	}

	s.mailer = mail.NewDispatcher(mail.LogSender{}, mail.Options{
		BaseURL:   cfg.Server.FrontendURL,
		From:      cfg.Mail.From,
		QueueSize: cfg.Mail.QueueSize,
		Timeout:   cfg.Mail.SendTimeout,
	})

	passwords := accounts.NewPasswordPolicy(s.mailer, registry, cfg.Security.ResetTokenTTL)
	s.Accounts = accounts.NewManager(s.Users, s.Nodes, passwords)
	s.Accounts.SetSessionTimeout(cfg.Security.EditSessionTimeout)

	return s, nil
}

// Close drains queued mail and releases connections.
func (s *Services) Close() {
	s.mailer.Close()
	s.cancel()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
