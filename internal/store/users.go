package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/utils"
	"gorm.io/gorm"
)

// Users is the gorm backed accounts.UserStore. Writes are guarded by the
// version column: an update only lands when the caller saw the latest row.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

var errUsernameTaken = &accounts.ValidationError{Field: accounts.FieldUsername, Reason: "is already taken"}

func (s *Users) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounts.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByUsername looks a user up by login name, case-insensitively.
func (s *Users) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(strings.TrimSpace(username))).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounts.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Users) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if err := s.ensureUsernameFree(ctx, u.Username, uuid.Nil); err != nil {
		return nil, err
	}

	record := *u
	if err := hashInto(&record); err != nil {
		return nil, err
	}
	if record.Version == 0 {
		record.Version = 1
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, errUsernameTaken
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return &record, nil
}

// Update writes every column of u in one statement, provided the stored
// version still equals u.Version. last_login is left alone: RecordLogin owns
// it and does not move the version. The returned record carries the new
// version.
func (s *Users) Update(ctx context.Context, u *models.User) (*models.User, error) {
	if err := s.ensureUsernameFree(ctx, u.Username, u.ID); err != nil {
		return nil, err
	}

	next := *u
	if err := hashInto(&next); err != nil {
		return nil, err
	}
	next.Version = u.Version + 1

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND version = ?", u.ID, u.Version).
		Select("*").
		Omit("id", "created_at", "last_login").
		Updates(&next)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, errUsernameTaken
		}
		return nil, fmt.Errorf("error updating user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.missOrConflict(ctx, u.ID)
	}

	return s.Get(ctx, u.ID)
}

func (s *Users) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return fmt.Errorf("error deleting user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Users) List(ctx context.Context, opts accounts.ListOptions) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ? OR LOWER(mail) LIKE ?", pattern, pattern, pattern)
	}
	if opts.Role != "" {
		query = query.Where("role = ?", opts.Role)
	}
	if opts.KeyExpired {
		query = query.Where("pgp_key_expiration IS NOT NULL AND pgp_key_expiration < NOW()")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting users: %w", err)
	}

	var users []models.User
	if err := utils.ApplyPagination(query, opts.Offset, opts.Limit).
		Order("username ASC").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("error listing users: %w", err)
	}

	return users, total, nil
}

// RecordLogin stamps the last login time. It does not bump the version, so
// an open admin edit is not invalidated by the user signing in.
func (s *Users) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login", at.UTC()).Error
}

// SetTwoFactor stores the sealed TOTP secret and enrollment flag of id.
func (s *Users) SetTwoFactor(ctx context.Context, id uuid.UUID, sealedSecret string, enabled bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"two_factor_secret": sealedSecret,
			"two_factor_enable": enabled,
			"version":           gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Users) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return accounts.ErrNotFound
	}
	return accounts.ErrConcurrentModification
}

func (s *Users) ensureUsernameFree(ctx context.Context, username string, self uuid.UUID) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username))
	if self != uuid.Nil {
		query = query.Where("id <> ?", self)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errUsernameTaken
	}
	return nil
}

// isUniqueViolation recognizes the username index rejecting a write that
// raced past ensureUsernameFree, on postgres and sqlite alike.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// hashInto replaces a plaintext password with its bcrypt hash.
func hashInto(u *models.User) error {
	if u.Password == "" {
		return nil
	}
	hash, err := utils.HashPassword(u.Password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	u.PasswordHash = hash
	u.Password = ""
	return nil
}
