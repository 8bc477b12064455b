package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nodeadmin/backend/internal/bootstrap"
	"github.com/nodeadmin/backend/internal/config"
	"github.com/nodeadmin/backend/internal/database"
	"github.com/nodeadmin/backend/internal/handlers"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/pkg/logger"
)

func main() {
	logger.Init()

	cfg := config.Load()

	services, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer services.Close()

	if cfg.Seed.Enabled {
		if err := database.SeedAdminUser(services.DB, cfg.Seed); err != nil {
			log.Fatalf("seeding admin failed: %v", err)
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(services.Users)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	handlers.RegisterRoutes(app, handlers.Handlers{
		Auth:      handlers.NewAuthHandler(services.Users, services.Accounts),
		Users:     handlers.NewUsersHandler(services.Accounts),
		TwoFactor: handlers.NewTwoFactorHandler(services.Users),
		Node:      handlers.NewNodeHandler(services.Nodes),
	}, authMiddleware)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}
}
