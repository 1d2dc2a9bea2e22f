package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type identityKey struct{}

// identity is the caller resolved from the bearer token. Both fields are kept
// as the raw strings from the claims so tests can inject arbitrary values.
type identity struct {
	userID string
	role   string
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func withIdentity(ctx context.Context, update func(*identity)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := identityFrom(ctx)
	update(&id)
	return context.WithValue(ctx, identityKey{}, id)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous callers.
func UserIDFromContext(ctx context.Context) string {
	return identityFrom(ctx).userID
}

// RoleFromContext returns the caller's role claim, or "".
func RoleFromContext(ctx context.Context) string {
	return identityFrom(ctx).role
}

// RequireUserID returns the authenticated user id or an unauthorized error.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// RequireActor is RequireUserID plus the caller's role. A missing role reads as customer.
func RequireActor(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	userID, err := RequireUserID(ctx)
	if err != nil {
		return uuid.Nil, "", err
	}
	role := enums.UserRole(RoleFromContext(ctx))
	if role == "" {
		role = enums.UserRoleCustomer
	}
	return userID, role, nil
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.userID = userID })
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.role = role })
}
