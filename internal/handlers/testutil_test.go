package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/database"
	"github.com/nodeadmin/backend/internal/middleware"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/internal/store"
	"github.com/nodeadmin/backend/internal/tokens"
	"github.com/nodeadmin/backend/pkg/logger"
	"github.com/nodeadmin/backend/pkg/utils"
	"gorm.io/gorm"
)

const testPassword = "Sixteen$Chars9"

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	users  *store.Users
	nodes  *store.NodeConfigs
	mailer *captureMailer
}

type capturedMail struct {
	kind   string
	userID uuid.UUID
	to     string
	token  string
}

// captureMailer keeps outgoing links so tests can follow them.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) SendActivationLink(_ context.Context, userID uuid.UUID, to, token string) {
	m.record(capturedMail{kind: "activation", userID: userID, to: to, token: token})
}

func (m *captureMailer) SendResetLink(_ context.Context, userID uuid.UUID, to, token string) {
	m.record(capturedMail{kind: "reset", userID: userID, to: to, token: token})
}

func (m *captureMailer) record(mail capturedMail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
}

func (m *captureMailer) last(t *testing.T) capturedMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be dispatched")
	}
	return m.sent[len(m.sent)-1]
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC().Format("2006-01-02 15:04:05.999999999-07:00"), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureSecretKey("test-encryption-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}

	users := store.NewUsers(db)
	nodes := store.NewNodeConfigs(db)
	mailer := &captureMailer{}
	passwords := accounts.NewPasswordPolicy(mailer, tokens.NewMemory(), time.Hour)
	manager := accounts.NewManager(users, nodes, passwords)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	RegisterRoutes(app, Handlers{
		Auth:      NewAuthHandler(users, manager),
		Users:     NewUsersHandler(manager),
		TwoFactor: NewTwoFactorHandler(users),
		Node:      NewNodeHandler(nodes),
	}, middleware.NewAuthMiddleware(users))

	return &testEnv{app: app, db: db, users: users, nodes: nodes, mailer: mailer}
}

func createTestUser(t *testing.T, env *testEnv, username string, role models.UserRole) (*models.User, string) {
	t.Helper()

	user, err := env.users.Create(context.Background(), &models.User{
		Role:       role,
		Username:   username,
		Name:       "Test " + username,
		PublicName: "Test " + username,
		Mail:       username + "@test.com",
		State:      models.UserStateEnabled,
		Password:   testPassword,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func assertFieldError(t *testing.T, body map[string]any, field string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["field"].(string); got != field {
		t.Fatalf("expected field %q, got %q (error %v)", field, got, body["error"])
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	return data
}
