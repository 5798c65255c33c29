// Package token issues and verifies the two JWT kinds the platform uses:
// short-lived login tokens sent by email and long-lived session tokens
// bound to a user's current token id.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/models"
)

const (
	typeLogin = "login"
	typeUser  = "user"

	loginTokenLifetime = time.Hour
	userTokenLifetime  = 4 * 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// Key is the signing material tokens are issued and verified with: the
// shared secret plus the configured algorithm.
type Key struct {
	Secret []byte
	Method jwt.SigningMethod
}

// NewKey builds a Key for the named algorithm. Only the HMAC family is
// supported since signing and verification share the same secret.
func NewKey(secret []byte, algorithm string) (Key, error) {
	switch algorithm {
	case jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg():
		return Key{Secret: secret, Method: jwt.GetSigningMethod(algorithm)}, nil
	default:
		return Key{}, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
}

type loginClaims struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type userClaims struct {
	Type    string    `json:"type"`
	UserID  uuid.UUID `json:"user_id"`
	TokenID uuid.UUID `json:"token_id"`
	jwt.RegisteredClaims
}

// NewLoginToken creates the one-hour token embedded in a login email.
func NewLoginToken(key Key, email string, now time.Time) (string, error) {
	claims := loginClaims{
		Type:  typeLogin,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(loginTokenLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(key.Method, claims).SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign login token: %w", err)
	}

	return signed, nil
}

// ParseLoginToken verifies a login token and returns the email it was
// issued for.
func ParseLoginToken(key Key, tokenString string) (string, error) {
	var claims loginClaims
	err := parse(key, tokenString, &claims)
	if err != nil {
		return "", err
	}
	if claims.Type != typeLogin {
		return "", ErrInvalidToken
	}

	return claims.Email, nil
}

// NewUserToken creates the four-week session token handed out after a
// successful login. It carries the user's current token id, so rotating
// that id invalidates every outstanding session at once.
func NewUserToken(key Key, user *models.User, now time.Time) (string, error) {
	claims := userClaims{
		Type:    typeUser,
		UserID:  user.ID,
		TokenID: user.TokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(userTokenLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(key.Method, claims).SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign user token: %w", err)
	}

	return signed, nil
}

// ParseUserToken verifies a session token and loads the user it belongs
// to. Tokens whose token id no longer matches the user's are rejected.
func ParseUserToken(
	ctx context.Context,
	db *gorm.DB,
	key Key,
	tokenString string,
) (*models.User, error) {
	var claims userClaims
	err := parse(key, tokenString, &claims)
	if err != nil {
		return nil, err
	}
	if claims.Type != typeUser {
		return nil, ErrInvalidToken
	}

	user, err := models.ByID[models.User](ctx, db.Preload("Teams"), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.TokenID != claims.TokenID {
		return nil, ErrInvalidToken
	}

	return user, nil
}

func parse(key Key, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return key.Secret, nil },
		jwt.WithValidMethods([]string{key.Method.Alg()}),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
