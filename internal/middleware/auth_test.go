package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"gorm.io/gorm"
)

func setupMiddlewareTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Init()
	utils.ConfigureJWT("middleware-test-secret", 24)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed automigrating: %v", err)
	}

	return db
}

func createMiddlewareTestUser(t *testing.T, db *gorm.DB, username string, role models.UserRole, state models.UserState) (*models.User, string) {
	t.Helper()
	user := &models.User{
		Username: username,
		Name:     "Test User",
		Mail:     username + "@test.com",
		Role:     role,
		State:    state,
		Version:  1,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	return user, token
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed decoding body: %v body=%q", err, string(raw))
	}
	return body
}

func TestRequireAuth(t *testing.T) {
	db := setupMiddlewareTestDB(t)
	auth := NewAuthMiddleware(store.NewUsers(db))
	_, token := createMiddlewareTestUser(t, db, "auth-require", models.UserRoleRecipient, models.UserStateEnabled)
	_, disabledToken := createMiddlewareTestUser(t, db, "auth-disabled", models.UserRoleRecipient, models.UserStateDisabled)

	app := fiber.New()
	app.Get("/protected", auth.RequireAuth, func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		return c.JSON(fiber.Map{"username": user.Username, "userID": c.Locals("userID")})
	})

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		resp, _ := app.Test(req, 5000)
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body["error"] != "missing authorization header" {
			t.Fatalf("expected missing header error, got %v", body["error"])
		}
	})

	t.Run("invalid authorization format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic somecreds")
		resp, _ := app.Test(req, 5000)
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body["error"] != "invalid authorization format" {
			t.Fatalf("expected invalid format error, got %v", body["error"])
		}
	})

	t.Run("invalid JWT token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-jwt-token")
		resp, _ := app.Test(req, 5000)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("valid JWT token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, _ := app.Test(req, 5000)
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["username"] != "auth-require" {
			t.Fatalf("expected username auth-require, got %v", body["username"])
		}
		if body["userID"] == nil || body["userID"] == "" {
			t.Fatal("expected userID local to be set")
		}
	})

	t.Run("disabled user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+disabledToken)
		resp, _ := app.Test(req, 5000)
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body["error"] != "account disabled" {
			t.Fatalf("expected account disabled error, got %v", body["error"])
		}
	})

	t.Run("JWT for deleted user", func(t *testing.T) {
		gone, goneToken := createMiddlewareTestUser(t, db, "auth-deleted", models.UserRoleRecipient, models.UserStateEnabled)
		db.Delete(gone)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+goneToken)
		resp, _ := app.Test(req, 5000)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestAdminOnly(t *testing.T) {
	db := setupMiddlewareTestDB(t)
	auth := NewAuthMiddleware(store.NewUsers(db))
	_, adminToken := createMiddlewareTestUser(t, db, "admin-only", models.UserRoleAdmin, models.UserStateEnabled)
	_, custodianToken := createMiddlewareTestUser(t, db, "custodian-only", models.UserRoleCustodian, models.UserStateEnabled)

	app := fiber.New()
	app.Get("/admin", auth.RequireAuth, AdminOnly, func(c *fiber.Ctx) error {
		actor, ok := CurrentActor(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"role": actor.Role})
	})

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "admin passes", token: adminToken, status: http.StatusOK},
		{name: "custodian refused", token: custodianToken, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			resp, _ := app.Test(req, 5000)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}

	t.Run("without authentication", func(t *testing.T) {
		bare := fiber.New()
		bare.Get("/admin", AdminOnly, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

		resp, _ := bare.Test(httptest.NewRequest(http.MethodGet, "/admin", nil), 5000)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
}
