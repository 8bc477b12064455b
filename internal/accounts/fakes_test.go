package accounts

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/utils"
)

const strongPassword = "Sixteen$Chars9"

// memStore is a version-checked in-memory UserStore.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
	// conflicts makes the next n updates lose a version race.
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]models.User)}
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *u
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Version = 1
	hashInto(&rec)
	s.users[rec.ID] = rec
	return &rec, nil
}

func (s *memStore) Update(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.conflicts > 0 {
		s.conflicts--
		return nil, ErrConcurrentModification
	}
	if cur.Version != u.Version {
		return nil, ErrConcurrentModification
	}
	rec := *u
	rec.Version++
	hashInto(&rec)
	s.users[rec.ID] = rec
	return &rec, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memStore) List(_ context.Context, opts ListOptions) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if opts.Role != "" && u.Role != opts.Role {
			continue
		}
		if opts.Search != "" && !strings.Contains(u.Username, opts.Search) {
			continue
		}
		if opts.KeyExpired && (u.PGPKeyExpiration == nil || u.PGPKeyExpiration.After(time.Now())) {
			continue
		}
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

// touch bumps the stored version as if another writer saved the record.
func (s *memStore) touch(id uuid.UUID, mutate func(u *models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	mutate(&u)
	u.Version++
	s.users[id] = u
}

func hashInto(u *models.User) {
	if u.Password != "" {
		u.PasswordHash = "hashed:" + u.Password
		u.Password = ""
	}
}

type staticNodes struct {
	mu  sync.Mutex
	cfg models.NodeConfig
}

func (n *staticNodes) Snapshot(context.Context) (models.NodeConfig, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg, nil
}

func (n *staticNodes) set(cfg models.NodeConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg = cfg
}

type queuedLink struct {
	kind   ResetKind
	userID uuid.UUID
	token  string
}

type fakeMailer struct {
	mu    sync.Mutex
	links []queuedLink
}

func (m *fakeMailer) SendActivationLink(_ context.Context, userID uuid.UUID, _, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, queuedLink{kind: ResetActivation, userID: userID, token: token})
}

func (m *fakeMailer) SendResetLink(_ context.Context, userID uuid.UUID, _, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, queuedLink{kind: ResetPassword, userID: userID, token: token})
}

func (m *fakeMailer) last(t *testing.T) queuedLink {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		t.Fatal("no link was queued")
	}
	return m.links[len(m.links)-1]
}

type mapRegistry struct {
	mu   sync.Mutex
	used map[string]bool
}

func (r *mapRegistry) Consume(_ context.Context, jti string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used[jti] {
		return false, nil
	}
	r.used[jti] = true
	return true, nil
}

type testBed struct {
	manager *Manager
	store   *memStore
	nodes   *staticNodes
	mailer  *fakeMailer
	admin   Actor
}

func newTestBed(t *testing.T, cfg models.NodeConfig) *testBed {
	t.Helper()
	utils.ConfigureJWT("test-secret", 24)

	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	b := &testBed{
		store:  newMemStore(),
		nodes:  &staticNodes{cfg: cfg},
		mailer: &fakeMailer{},
	}
	passwords := NewPasswordPolicy(b.mailer, &mapRegistry{used: map[string]bool{}}, time.Hour)
	b.manager = NewManager(b.store, b.nodes, passwords)

	admin, err := b.manager.Add(context.Background(), SystemActor, NewUser{
		Role:     models.UserRoleAdmin,
		Username: "admin",
		Name:     "Admin",
		Mail:     "admin@example.org",
		Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("seeding admin: %v", err)
	}
	b.admin = Actor{ID: admin.ID, Role: models.UserRoleAdmin}
	return b
}

func (b *testBed) addRecipient(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := b.manager.Add(context.Background(), b.admin, NewUser{
		Role:     models.UserRoleRecipient,
		Username: username,
		Name:     strings.ToUpper(username[:1]) + username[1:],
		Mail:     username + "@example.org",
	})
	if err != nil {
		t.Fatalf("adding %s: %v", username, err)
	}
	return u
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
