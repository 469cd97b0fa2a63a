package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	user, err := UserFromRequest(req)
	if err != nil || user != nil {
		t.Fatalf("anonymous request: user=%v err=%v", user, err)
	}

	req.Header.Set(UserIDHeader, "42")
	req.Header.Set(RoleHeader, "Manager")
	user, err = UserFromRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 42 || !user.Manager {
		t.Fatalf("unexpected user %+v", user)
	}

	for _, bad := range []string{"abc", "0", "-3"} {
		req.Header.Set(UserIDHeader, bad)
		if _, err := UserFromRequest(req); !errors.Is(err, ErrBadIdentity) {
			t.Fatalf("%q: expected ErrBadIdentity, got %v", bad, err)
		}
	}
}

func TestRequireUserUnauthenticated(t *testing.T) {
	if _, err := RequireUser(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireManager(t *testing.T) {
	player := ContextWithUser(context.Background(), &AuthUser{ID: 10})
	if _, err := RequireManager(player); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	manager := ContextWithUser(context.Background(), &AuthUser{ID: 11, Manager: true})
	user, err := RequireManager(manager)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if user.ID != 11 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestCanPayFor(t *testing.T) {
	if CanPayFor(nil, 1) {
		t.Fatal("anonymous callers pay for nobody")
	}
	if !CanPayFor(&AuthUser{ID: 1}, 1) {
		t.Fatal("players pay for themselves")
	}
	if CanPayFor(&AuthUser{ID: 1}, 2) {
		t.Fatal("players do not pay for others")
	}
	if !CanPayFor(&AuthUser{ID: 1, Manager: true}, 2) {
		t.Fatal("managers take payments for anyone")
	}
}
