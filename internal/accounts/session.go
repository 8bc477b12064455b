package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
)

type SessionState string

const (
	StateViewing    SessionState = "viewing"
	StateEditing    SessionState = "editing"
	StateValidating SessionState = "validating"
	StateCommitted  SessionState = "committed"
	StateTerminated SessionState = "terminated"
)

// Delta is a set of staged changes. Nil pointers leave the field untouched;
// a blank Password means "keep the current one".
type Delta struct {
	Username               *string
	Name                   *string
	PublicName             *string
	Mail                   *string
	State                  *models.UserState
	Password               *string
	PasswordChangeNeeded   *bool
	Language               *string
	Notification           *bool
	PGPKeyPublic           *string
	PGPKeyRemove           bool
	ForcefullySelected     *bool
	CanPostponeExpiration  *bool
	CanDeleteSubmission    *bool
	CanEditGeneralSettings *bool
}

func (d Delta) passwordStaged() bool {
	return d.Password != nil && *d.Password != ""
}

func (d Delta) keyStaged() bool {
	return d.PGPKeyRemove || d.PGPKeyPublic != nil
}

// fields lists the fields the delta touches.
func (d Delta) fields() []Field {
	var out []Field
	add := func(set bool, f Field) {
		if set {
			out = append(out, f)
		}
	}
	add(d.Username != nil, FieldUsername)
	add(d.Name != nil, FieldName)
	add(d.PublicName != nil, FieldPublicName)
	add(d.Mail != nil, FieldEmail)
	add(d.State != nil, FieldState)
	add(d.passwordStaged(), FieldPassword)
	add(d.PasswordChangeNeeded != nil, FieldPasswordChangeNeeded)
	add(d.Language != nil, FieldLanguage)
	add(d.Notification != nil, FieldNotification)
	add(d.keyStaged(), FieldPGPKey)
	add(d.ForcefullySelected != nil, FieldForcefullySelected)
	add(d.CanPostponeExpiration != nil, FieldCanPostponeExpiration)
	add(d.CanDeleteSubmission != nil, FieldCanDeleteSubmission)
	add(d.CanEditGeneralSettings != nil, FieldCanEditGeneralSettings)
	return out
}

// merge overlays o on d; later stages win.
func (d *Delta) merge(o Delta) {
	pickString(&d.Username, o.Username)
	pickString(&d.Name, o.Name)
	pickString(&d.PublicName, o.PublicName)
	pickString(&d.Mail, o.Mail)
	if o.State != nil {
		d.State = o.State
	}
	pickString(&d.Password, o.Password)
	pickBool(&d.PasswordChangeNeeded, o.PasswordChangeNeeded)
	pickString(&d.Language, o.Language)
	pickBool(&d.Notification, o.Notification)
	pickString(&d.PGPKeyPublic, o.PGPKeyPublic)
	d.PGPKeyRemove = d.PGPKeyRemove || o.PGPKeyRemove
	pickBool(&d.ForcefullySelected, o.ForcefullySelected)
	pickBool(&d.CanPostponeExpiration, o.CanPostponeExpiration)
	pickBool(&d.CanDeleteSubmission, o.CanDeleteSubmission)
	pickBool(&d.CanEditGeneralSettings, o.CanEditGeneralSettings)
}

func pickString(dst **string, src *string) {
	if src != nil {
		*dst = src
	}
}

func pickBool(dst **bool, src *bool) {
	if src != nil {
		*dst = src
	}
}

// EditSession walks one user record through view, edit and commit on behalf
// of one actor.
type EditSession struct {
	mu       sync.Mutex
	actor    Actor
	userID   uuid.UUID
	base     *models.User
	pending  Delta
	state    SessionState
	keyState KeyState
	lastErr  error
	touched  time.Time
	store    UserStore
	nodes    NodeConfigProvider
}

func newSession(actor Actor, userID uuid.UUID, store UserStore, nodes NodeConfigProvider) *EditSession {
	return &EditSession{
		actor:    actor,
		userID:   userID,
		state:    StateViewing,
		keyState: KeyAbsent,
		touched:  now(),
		store:    store,
		nodes:    nodes,
	}
}

func (s *EditSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EditSession) KeyState() KeyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyState
}

// Err returns the error that sent the session back to editing, if any.
func (s *EditSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *EditSession) Actor() Actor { return s.actor }

// User returns a copy of the record the session is based on.
func (s *EditSession) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return nil
	}
	u := *s.base
	return &u
}

// Edit enters editing with a freshly loaded record. Called while already
// editing it reloads the record and keeps staged changes, which is how a
// caller recovers from ErrConcurrentModification.
func (s *EditSession) Edit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateViewing && s.state != StateEditing {
		return ErrInvalidState
	}

	u, err := s.store.Get(ctx, s.userID)
	if err != nil {
		return err
	}

	s.base = u
	s.keyState = storedKeyState(u)
	s.state = StateEditing
	s.touched = now()
	return nil
}

func (s *EditSession) Stage(d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return ErrInvalidState
	}
	s.pending.merge(d)
	if s.pending.keyStaged() {
		s.keyState = KeyPendingValidation
	}
	s.touched = now()
	return nil
}

// Restage replaces the staged changes with d. Nothing from an earlier,
// failed save carries over.
func (s *EditSession) Restage(d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return ErrInvalidState
	}
	s.pending = d
	s.keyState = storedKeyState(s.base)
	if d.keyStaged() {
		s.keyState = KeyPendingValidation
	}
	s.touched = now()
	return nil
}

// idle reports whether the session holds an edit nobody touched for at
// least timeout. A non-positive timeout never expires.
func (s *EditSession) idle(at time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timeout > 0 && s.state == StateEditing && at.Sub(s.touched) >= timeout
}

// Save validates the staged changes against the whole record and commits
// them in one store write. Any failure leaves the session editing with the
// staged changes intact and nothing persisted.
func (s *EditSession) Save(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return nil, ErrInvalidState
	}
	s.state = StateValidating
	s.touched = now()

	cfg, err := s.nodes.Snapshot(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	candidate, err := s.candidate(cfg)
	if err != nil {
		return nil, s.fail(err)
	}

	updated, err := s.store.Update(ctx, candidate)
	if err != nil {
		return nil, s.fail(err)
	}

	s.base = updated
	s.pending = Delta{}
	s.keyState = storedKeyState(updated)
	s.lastErr = nil
	s.state = StateCommitted

	u := *updated
	return &u, nil
}

// Cancel drops staged changes and returns to viewing.
func (s *EditSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return ErrInvalidState
	}
	s.pending = Delta{}
	s.lastErr = nil
	if s.base != nil {
		s.keyState = storedKeyState(s.base)
	}
	s.state = StateViewing
	return nil
}

// Delete removes the record. Only available while viewing, never for the
// actor's own account.
func (s *EditSession) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == s.actor.ID {
		return ErrSelfDeletion
	}
	if s.state != StateViewing {
		return ErrInvalidState
	}
	if err := s.store.Delete(ctx, s.userID); err != nil {
		return err
	}
	s.state = StateTerminated
	return nil
}

func (s *EditSession) fail(err error) error {
	s.lastErr = err
	s.state = StateEditing
	return err
}

func (s *EditSession) candidate(cfg models.NodeConfig) (*models.User, error) {
	editable := EditableFields(s.base.Role, cfg)
	for _, f := range s.pending.fields() {
		if !editable.Has(f) {
			return nil, notEditable(f)
		}
	}

	c := *s.base
	c.Password = ""
	d := s.pending

	if d.Username != nil {
		c.Username = strings.TrimSpace(*d.Username)
	}
	if d.Name != nil {
		c.Name = strings.TrimSpace(*d.Name)
	}
	if d.PublicName != nil {
		c.PublicName = strings.TrimSpace(*d.PublicName)
	}
	if d.Mail != nil {
		c.Mail = strings.TrimSpace(*d.Mail)
	}
	if d.State != nil {
		c.State = *d.State
	}
	if d.PasswordChangeNeeded != nil {
		c.PasswordChangeNeeded = *d.PasswordChangeNeeded
	}
	if d.Language != nil {
		c.Language = *d.Language
	}
	if d.Notification != nil {
		c.Notification = *d.Notification
	}
	if d.ForcefullySelected != nil {
		c.ForcefullySelected = *d.ForcefullySelected
	}
	if d.CanPostponeExpiration != nil {
		c.CanPostponeExpiration = *d.CanPostponeExpiration
	}
	if d.CanDeleteSubmission != nil {
		c.CanDeleteSubmission = *d.CanDeleteSubmission
	}
	if d.CanEditGeneralSettings != nil {
		c.CanEditGeneralSettings = *d.CanEditGeneralSettings
	}

	if err := ValidateRecord(&c, cfg); err != nil {
		return nil, err
	}

	if d.passwordStaged() {
		if err := CheckPassword(*d.Password); err != nil {
			return nil, err
		}
		c.Password = *d.Password
		if c.ID != s.actor.ID {
			c.PasswordChangeNeeded = true
		} else if cfg.Encryption {
			c.Encryption = true
		}
	}

	switch {
	case d.PGPKeyRemove:
		applyKey(&c, "", nil)
	case d.PGPKeyPublic != nil:
		info, err := ValidateKey(*d.PGPKeyPublic, false)
		if err != nil {
			s.keyState = KeyInvalid
			return nil, err
		}
		applyKey(&c, *d.PGPKeyPublic, info)
	}

	return &c, nil
}
