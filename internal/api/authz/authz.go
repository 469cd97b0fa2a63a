// Package authz carries the caller identity that a trusted upstream proxy
// passes in request headers. Session handling lives outside this service.
package authz

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const (
	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"

	RoleManager = "manager"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrBadIdentity     = errors.New("malformed identity header")
)

type AuthUser struct {
	ID      int64
	Manager bool
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx, or nil.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}
	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}
	return user
}

// UserFromRequest reads the identity headers. No header means an anonymous
// request and returns nil without error.
func UserFromRequest(r *http.Request) (*AuthUser, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrBadIdentity
	}
	return &AuthUser{
		ID:      id,
		Manager: strings.EqualFold(strings.TrimSpace(r.Header.Get(RoleHeader)), RoleManager),
	}, nil
}

// RequireUser returns the authenticated caller.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func RequireManager(ctx context.Context) (*AuthUser, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !user.Manager {
		return nil, ErrForbidden
	}
	return user, nil
}

// CanPayFor reports whether the caller may charge payerID: managers may take
// payments for anyone, players only for themselves.
func CanPayFor(user *AuthUser, payerID int64) bool {
	return user != nil && (user.Manager || user.ID == payerID)
}
