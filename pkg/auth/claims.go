package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

var (
	ErrMissingSubject = errors.New("token has no user id")
	ErrUnknownRole    = errors.New("token carries an unknown role")
)

// AccessTokenPayload is the input to MintAccessToken.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the bearer token body. The user id lives in user_id;
// tokens from providers that only set sub are accepted when sub is a UUID.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// normalize fills UserID from sub when needed and checks the custom claims.
func (c *AccessTokenClaims) normalize() error {
	if c.UserID == uuid.Nil && c.Subject != "" {
		if id, err := uuid.Parse(c.Subject); err == nil {
			c.UserID = id
		}
	}
	if c.UserID == uuid.Nil {
		return ErrMissingSubject
	}
	if !c.Role.IsValid() {
		return ErrUnknownRole
	}
	return nil
}
