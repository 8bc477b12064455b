package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
)

// UserStore persists user records. Update and Delete return ErrNotFound or
// ErrConcurrentModification; Update only succeeds when the stored version
// matches u.Version.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, u *models.User) (*models.User, error)
	Update(ctx context.Context, u *models.User) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]models.User, int64, error)
}

type ListOptions struct {
	Search string
	Role   models.UserRole
	// KeyExpired keeps only users whose stored PGP key is past its expiration.
	KeyExpired bool
	Offset     int
	Limit      int
}

// NodeConfigProvider hands out an immutable snapshot of the node flags.
type NodeConfigProvider interface {
	Snapshot(ctx context.Context) (models.NodeConfig, error)
}

// MailDispatcher queues outgoing mail. Calls must not block on delivery.
type MailDispatcher interface {
	SendActivationLink(ctx context.Context, userID uuid.UUID, mail, token string)
	SendResetLink(ctx context.Context, userID uuid.UUID, mail, token string)
}

// TokenRegistry remembers consumed token ids. Consume reports false when jti
// was already used.
type TokenRegistry interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Actor is the authenticated principal performing an action.
type Actor struct {
	ID   uuid.UUID
	Role models.UserRole
}

// SystemActor acts on behalf of operator tooling. Its id matches no user.
var SystemActor = Actor{ID: uuid.Nil, Role: models.UserRoleAdmin}
