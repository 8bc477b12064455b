package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resetTokenType = "password_reset"

// ResetClaims back both activation and password reset links.
type ResetClaims struct {
	UserID    uuid.UUID `json:"userID"`
	TokenType string    `json:"tokenType"`
	jwt.RegisteredClaims
}

func GenerateResetToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		UserID:    userID,
		TokenType: resetTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateResetToken(tokenString string) (*ResetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid reset token")
	}

	if claims.TokenType != resetTokenType {
		return nil, fmt.Errorf("invalid token type")
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("missing token ID")
	}

	return claims, nil
}
