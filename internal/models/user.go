package models

import "time"

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleRecipient UserRole = "recipient"
	UserRoleCustodian UserRole = "custodian"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleRecipient, UserRoleCustodian:
		return true
	default:
		return false
	}
}

type UserState string

const (
	UserStateEnabled  UserState = "enabled"
	UserStateDisabled UserState = "disabled"
)

// User is a platform account. Password is write-only: the store hashes it
// into PasswordHash and clears it.
type User struct {
	BaseModel
	Role                 UserRole   `json:"role" gorm:"type:varchar(20);not null;index"`
	Username             string     `json:"username" gorm:"type:varchar(255);index"`
	Name                 string     `json:"name" gorm:"type:varchar(255)"`
	PublicName           string     `json:"publicName" gorm:"type:varchar(255)"`
	Mail                 string     `json:"mail" gorm:"type:varchar(255);not null"`
	State                UserState  `json:"state" gorm:"type:varchar(20);not null;default:'enabled'"`
	Password             string     `json:"-" gorm:"-"`
	PasswordHash         string     `json:"-" gorm:"type:text"`
	PasswordChangeNeeded bool       `json:"passwordChangeNeeded"`
	LastLogin            *time.Time `json:"lastLogin,omitempty"`
	Language             string     `json:"language" gorm:"type:varchar(12)"`
	Notification         bool       `json:"notification"`
	TwoFactorEnable      bool       `json:"twoFactorEnable"`
	TwoFactorSecret      string     `json:"-" gorm:"type:text"`
	Encryption           bool       `json:"encryption"`
	PGPKeyFingerprint    string     `json:"pgpKeyFingerprint" gorm:"type:varchar(64)"`
	PGPKeyPublic         string     `json:"pgpKeyPublic" gorm:"type:text"`
	// PGPKeyExpiration is nil when the key never expires.
	PGPKeyExpiration       *time.Time `json:"pgpKeyExpiration,omitempty"`
	EscrowGrant            bool       `json:"escrowGrant"`
	ForcefullySelected     bool       `json:"forcefullySelected"`
	CanPostponeExpiration  bool       `json:"canPostponeExpiration"`
	CanDeleteSubmission    bool       `json:"canDeleteSubmission"`
	CanEditGeneralSettings bool       `json:"canEditGeneralSettings"`
	Version                int64      `json:"version" gorm:"not null;default:1"`
}

// NeverLoggedIn reports whether the account has not completed a first login.
func (u *User) NeverLoggedIn() bool {
	return u.LastLogin == nil
}
