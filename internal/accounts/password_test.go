package accounts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/nodeadmin/backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		password string
		want     int
	}{
		{"", 0},
		{"abc", 0},
		{"abcdefgh", 0},
		{"abcdE1", 1},
		{"Abcdefg1!", 1},
		{"abcdefghijklmnop", 0},
		{"Abcdef1!xy", 2},
		{"Sixteen$Chars9", 3},
		{"Eighteen$Chars9xyz", 4},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.password))
		})
	}
}

func TestClassifyNeverDropsAsPasswordGrows(t *testing.T) {
	full := "aB3$aB3$aB3$aB3$aB3$xyz"
	prev := 0
	for i := 1; i <= len(full); i++ {
		score := Classify(full[:i])
		assert.GreaterOrEqual(t, score, prev, "prefix %q", full[:i])
		assert.LessOrEqual(t, score, maxPasswordScore)
		prev = score
	}
	assert.Equal(t, maxPasswordScore, prev)
}

func TestCheckPassword(t *testing.T) {
	assert.ErrorIs(t, CheckPassword("abc"), ErrWeakPassword)
	assert.ErrorIs(t, CheckPassword(strings.Repeat("a", 40)), ErrWeakPassword)
	assert.NoError(t, CheckPassword(strongPassword))
}

func TestIssueResetTokenKind(t *testing.T) {
	utils.ConfigureJWT("test-secret", 24)
	mailer := &fakeMailer{}
	policy := NewPasswordPolicy(mailer, &mapRegistry{used: map[string]bool{}}, time.Hour)
	ctx := context.Background()

	u := &models.User{Mail: "new@example.org"}
	u.ID = uuid.New()

	kind, err := policy.IssueResetToken(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, ResetActivation, kind)
	assert.Equal(t, ResetActivation, mailer.last(t).kind)

	at := time.Now()
	u.LastLogin = &at
	kind, err = policy.IssueResetToken(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, ResetPassword, kind)
	assert.Equal(t, ResetPassword, mailer.last(t).kind)
	assert.Equal(t, u.ID, mailer.last(t).userID)
}

func TestConsumeResetToken(t *testing.T) {
	utils.ConfigureJWT("test-secret", 24)
	mailer := &fakeMailer{}
	policy := NewPasswordPolicy(mailer, &mapRegistry{used: map[string]bool{}}, time.Hour)
	ctx := context.Background()

	userID := uuid.New()
	token, err := utils.GenerateResetToken(userID, time.Hour)
	require.NoError(t, err)

	t.Run("accepted once", func(t *testing.T) {
		got, err := policy.ConsumeResetToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)

		_, err = policy.ConsumeResetToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := policy.ConsumeResetToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("session token", func(t *testing.T) {
		session, err := utils.GenerateToken(&models.User{BaseModel: models.BaseModel{ID: userID}, Role: models.UserRoleAdmin})
		require.NoError(t, err)
		_, err = policy.ConsumeResetToken(ctx, session)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
