package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/logger"
)

// DefaultSessionTimeout is how long an untouched edit keeps other admins
// out of a record.
const DefaultSessionTimeout = 30 * time.Minute

// resetAttempts bounds the retries of a reset whose write lost a version race.
const resetAttempts = 3

// Manager is the entry point for administrative account actions. It keeps
// at most one edit session per user record.
type Manager struct {
	store     UserStore
	nodes     NodeConfigProvider
	passwords *PasswordPolicy

	mu             sync.Mutex
	sessions       map[uuid.UUID]*EditSession
	sessionTimeout time.Duration
}

func NewManager(store UserStore, nodes NodeConfigProvider, passwords *PasswordPolicy) *Manager {
	return &Manager{
		store:          store,
		nodes:          nodes,
		passwords:      passwords,
		sessions:       make(map[uuid.UUID]*EditSession),
		sessionTimeout: DefaultSessionTimeout,
	}
}

// SetSessionTimeout changes how long an idle edit blocks other actors.
// Zero disables expiry.
func (m *Manager) SetSessionTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionTimeout = d
}

type NewUser struct {
	Role           models.UserRole
	Username       string
	Name           string
	PublicName     string
	Mail           string
	Language       string
	Password       string
	PGPKeyPublic   string
	SendActivation bool
}

// View is a user record together with the editing surface its role exposes.
type View struct {
	User         models.User
	Required     FieldSet
	Editable     FieldSet
	Sections     SectionSet
	SessionState SessionState
	KeyState     KeyState
}

func authorize(actor Actor) error {
	if actor.Role != models.UserRoleAdmin {
		return ErrForbidden
	}
	return nil
}

// Add creates a user. Password and PGP key are optional here.
func (m *Manager) Add(ctx context.Context, actor Actor, in NewUser) (*models.User, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	cfg, err := m.nodes.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading node config: %w", err)
	}

	u := &models.User{
		Role:                 in.Role,
		Username:             strings.TrimSpace(in.Username),
		Name:                 strings.TrimSpace(in.Name),
		PublicName:           strings.TrimSpace(in.PublicName),
		Mail:                 strings.TrimSpace(in.Mail),
		State:                models.UserStateEnabled,
		PasswordChangeNeeded: true,
		Language:             in.Language,
		Notification:         NotificationExposed(in.Role, cfg),
		Version:              1,
	}
	if u.PublicName == "" {
		u.PublicName = u.Name
	}
	if u.Language == "" {
		u.Language = cfg.DefaultLanguage
	}

	if err := ValidateRecord(u, cfg); err != nil {
		return nil, err
	}

	if in.Password != "" {
		if err := CheckPassword(in.Password); err != nil {
			return nil, err
		}
		u.Password = in.Password
	}

	info, err := ValidateKey(in.PGPKeyPublic, true)
	if err != nil {
		return nil, err
	}
	if info != nil {
		applyKey(u, in.PGPKeyPublic, info)
	}

	created, err := m.store.Create(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(actor.ID.String(), "user_created", map[string]interface{}{
		"target_user_id": created.ID.String(),
		"role":           string(created.Role),
	})

	if in.SendActivation {
		if _, err := m.passwords.IssueResetToken(ctx, created); err != nil {
			logger.Error("activation_link_failed", err, map[string]interface{}{
				"target_user_id": created.ID.String(),
			})
		}
	}

	return created, nil
}

func (m *Manager) List(ctx context.Context, actor Actor, opts ListOptions) ([]models.User, int64, error) {
	if err := authorize(actor); err != nil {
		return nil, 0, err
	}
	return m.store.List(ctx, opts)
}

// Get returns the record with its role-dependent editing surface.
func (m *Manager) Get(ctx context.Context, actor Actor, id uuid.UUID) (*View, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := m.nodes.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading node config: %w", err)
	}

	view := &View{
		User:         *u,
		Required:     RequiredFields(u.Role, cfg),
		Editable:     EditableFields(u.Role, cfg),
		Sections:     UserSections(u, cfg),
		SessionState: StateViewing,
		KeyState:     storedKeyState(u),
	}

	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s != nil && s.actor.ID == actor.ID {
		view.SessionState = s.State()
		view.KeyState = s.KeyState()
	}

	return view, nil
}

// Edit opens, or refreshes, the actor's edit session on id.
func (m *Manager) Edit(ctx context.Context, actor Actor, id uuid.UUID) (*EditSession, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	s, err := m.acquire(actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.Edit(ctx); err != nil {
		if s.State() == StateViewing {
			m.release(id, s)
		}
		return nil, err
	}
	return s, nil
}

// Save stages delta on the actor's session, opening one if needed, and
// commits it.
func (m *Manager) Save(ctx context.Context, actor Actor, id uuid.UUID, delta Delta) (*models.User, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	s, err := m.acquire(actor, id)
	if err != nil {
		return nil, err
	}
	if s.State() != StateEditing {
		if err := s.Edit(ctx); err != nil {
			m.release(id, s)
			return nil, err
		}
	}

	if err := s.Restage(delta); err != nil {
		return nil, err
	}

	u, err := s.Save(ctx)
	if err != nil {
		logger.WarnWithUser(actor.ID.String(), "user_update_rejected", map[string]interface{}{
			"target_user_id": id.String(),
			"error":          err.Error(),
		})
		return nil, err
	}

	m.release(id, s)
	logger.InfoWithUser(actor.ID.String(), "user_updated", map[string]interface{}{
		"target_user_id": id.String(),
		"version":        u.Version,
	})
	return u, nil
}

func (m *Manager) Cancel(actor Actor, id uuid.UUID) error {
	if err := authorize(actor); err != nil {
		return err
	}

	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil || s.actor.ID != actor.ID {
		return ErrInvalidState
	}

	if err := s.Cancel(); err != nil {
		return err
	}
	m.release(id, s)
	return nil
}

// Delete removes id. Deleting one's own account is always refused.
func (m *Manager) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if id == actor.ID {
		return ErrSelfDeletion
	}
	if err := authorize(actor); err != nil {
		return err
	}

	m.mu.Lock()
	if open := m.sessions[id]; open != nil && open.State() == StateEditing {
		if open.actor.ID == actor.ID {
			m.mu.Unlock()
			return ErrInvalidState
		}
		if !m.expired(open) {
			m.mu.Unlock()
			return ErrEditInProgress
		}
		m.dropExpired(id, open)
	}
	s := newSession(actor, id, m.store, m.nodes)
	m.sessions[id] = s
	m.mu.Unlock()

	err := s.Delete(ctx)
	m.release(id, s)
	if err != nil {
		return err
	}

	logger.InfoWithUser(actor.ID.String(), "user_deleted", map[string]interface{}{
		"target_user_id": id.String(),
	})
	return nil
}

// Disable2FA clears the two-factor enrollment of id right away.
func (m *Manager) Disable2FA(ctx context.Context, actor Actor, id uuid.UUID) (*models.User, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnable {
		return nil, &ValidationError{Field: FieldTwoFactor, Reason: "is not enabled"}
	}

	u.TwoFactorEnable = false
	u.TwoFactorSecret = ""
	updated, err := m.store.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(actor.ID.String(), "two_factor_disabled", map[string]interface{}{
		"target_user_id": id.String(),
	})
	return updated, nil
}

// ToggleEscrow flips the escrow grant of an admin and persists it right away.
func (m *Manager) ToggleEscrow(ctx context.Context, actor Actor, id uuid.UUID) (*models.User, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := m.nodes.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading node config: %w", err)
	}
	if !EscrowAllowed(u, cfg) {
		return nil, &ValidationError{Field: FieldEscrow, Reason: "is not available for this user"}
	}

	u.EscrowGrant = !u.EscrowGrant
	updated, err := m.store.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(actor.ID.String(), "escrow_toggled", map[string]interface{}{
		"target_user_id": id.String(),
		"escrow_grant":   updated.EscrowGrant,
	})
	return updated, nil
}

// SendPasswordReset issues an activation or reset link for id.
func (m *Manager) SendPasswordReset(ctx context.Context, actor Actor, id uuid.UUID) (ResetKind, error) {
	if err := authorize(actor); err != nil {
		return "", err
	}

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	kind, err := m.passwords.IssueResetToken(ctx, u)
	if err != nil {
		return "", err
	}

	logger.InfoWithUser(actor.ID.String(), "password_reset_issued", map[string]interface{}{
		"target_user_id": id.String(),
		"kind":           string(kind),
	})
	return kind, nil
}

// CompletePasswordReset redeems token and sets password. The token is only
// burned once the password passed the policy.
func (m *Manager) CompletePasswordReset(ctx context.Context, token, password string) (*models.User, error) {
	if err := CheckPassword(password); err != nil {
		return nil, err
	}

	userID, err := m.passwords.ConsumeResetToken(ctx, token)
	if err != nil {
		return nil, err
	}

	cfg, err := m.nodes.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading node config: %w", err)
	}

	// The token is spent; a concurrent admin save must not waste it.
	var updated *models.User
	for attempt := 0; attempt < resetAttempts; attempt++ {
		u, err := m.store.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrInvalidToken
			}
			return nil, err
		}

		u.Password = password
		u.PasswordChangeNeeded = false
		if cfg.Encryption {
			u.Encryption = true
		}
		updated, err = m.store.Update(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrentModification) || attempt == resetAttempts-1 {
			return nil, err
		}
	}

	logger.InfoWithUser(userID.String(), "password_reset_completed", nil)
	return updated, nil
}

// acquire returns the actor's open edit on id, or a new session in viewing
// state. Another actor's live edit blocks; an idle one is discarded.
func (m *Manager) acquire(actor Actor, id uuid.UUID) (*EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.sessions[id]; s != nil && s.State() == StateEditing {
		switch {
		case s.actor.ID == actor.ID:
			return s, nil
		case !m.expired(s):
			return nil, ErrEditInProgress
		default:
			m.dropExpired(id, s)
		}
	}

	s := newSession(actor, id, m.store, m.nodes)
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) release(id uuid.UUID, s *EditSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
}

// expired reports whether s stopped blocking others. Callers hold m.mu.
func (m *Manager) expired(s *EditSession) bool {
	return s.idle(now(), m.sessionTimeout)
}

// dropExpired forgets an abandoned edit. Callers hold m.mu.
func (m *Manager) dropExpired(id uuid.UUID, s *EditSession) {
	delete(m.sessions, id)
	logger.WarnWithUser(s.actor.ID.String(), "edit_session_expired", map[string]interface{}{
		"target_user_id": id.String(),
	})
}
