package accounts

import (
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/utils"
)

const (
	minPasswordLength = 10
	minPasswordScore  = 2
	maxPasswordScore  = 4
)

type charClasses struct {
	lower, upper, digit, special bool
}

func (c charClasses) count() int {
	n := 0
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.special} {
		if ok {
			n++
		}
	}
	return n
}

func classesOf(password string) charClasses {
	var c charClasses
	for _, ch := range password {
		switch {
		case unicode.IsLower(ch):
			c.lower = true
		case unicode.IsUpper(ch):
			c.upper = true
		case unicode.IsDigit(ch):
			c.digit = true
		default:
			c.special = true
		}
	}
	return c
}

// Classify scores password from 0 to 4. Anything short of the minimum policy
// (10 characters drawn from all four classes) scores below 2; longer
// passwords that satisfy it climb to 3 and 4.
func Classify(password string) int {
	length := utf8.RuneCountInString(password)
	classes := classesOf(password).count()

	if length < minPasswordLength || classes < 4 {
		if length >= 6 && classes >= 2 {
			return 1
		}
		return 0
	}

	switch {
	case length >= 18:
		return maxPasswordScore
	case length >= 14:
		return 3
	default:
		return minPasswordScore
	}
}

func MeetsMinimum(score int) bool {
	return score >= minPasswordScore
}

// CheckPassword returns ErrWeakPassword when password scores below the
// minimum.
func CheckPassword(password string) error {
	if !MeetsMinimum(Classify(password)) {
		return ErrWeakPassword
	}
	return nil
}

type ResetKind string

const (
	ResetActivation ResetKind = "activation"
	ResetPassword   ResetKind = "reset"
)

// PasswordPolicy issues and redeems the single-use tokens behind both the
// activation and the password reset links.
type PasswordPolicy struct {
	mailer   MailDispatcher
	registry TokenRegistry
	tokenTTL time.Duration
}

func NewPasswordPolicy(mailer MailDispatcher, registry TokenRegistry, tokenTTL time.Duration) *PasswordPolicy {
	return &PasswordPolicy{mailer: mailer, registry: registry, tokenTTL: tokenTTL}
}

// IssueResetToken signs a token for u and hands it to the mail dispatcher.
// Users that never logged in get an activation link, everyone else a reset
// link.
func (p *PasswordPolicy) IssueResetToken(ctx context.Context, u *models.User) (ResetKind, error) {
	token, err := utils.GenerateResetToken(u.ID, p.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("error signing reset token: %w", err)
	}

	if u.NeverLoggedIn() {
		p.mailer.SendActivationLink(ctx, u.ID, u.Mail, token)
		return ResetActivation, nil
	}
	p.mailer.SendResetLink(ctx, u.ID, u.Mail, token)
	return ResetPassword, nil
}

// ConsumeResetToken verifies token and burns it. A token is accepted once.
func (p *PasswordPolicy) ConsumeResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := utils.ValidateResetToken(token)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	ttl := p.tokenTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}

	fresh, err := p.registry.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error consuming reset token: %w", err)
	}
	if !fresh {
		return uuid.Nil, ErrInvalidToken
	}

	return claims.UserID, nil
}
