package rbac

import (
	"context"
	"fmt"
	"net/http"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/middleware"
)

// RoleResolver resolves role names to ids
type RoleResolver interface {
	IDByName(ctx context.Context, name string) (int64, bool)
}

// PermissionChecker answers whether a user holds any of a set of codes
type PermissionChecker interface {
	UserHasAny(ctx context.Context, userID int64, codes ...string) (bool, error)
}

// RequireRole admits callers whose role matches one of refs. Names are
// resolved at check time, so a renamed or newly created role is picked up
// after one reload.
func RequireRole(roles RoleResolver, refs ...RoleRef) middleware.Guard {
	return middleware.NewGuard(middleware.StageRole, func(r *http.Request, claims *auth.Claims) error {
		if HasRole(r.Context(), roles, claims, refs...) {
			return nil
		}
		return ErrInsufficientRole
	})
}

// HasRole reports whether claims carry a role matching one of refs
func HasRole(ctx context.Context, roles RoleResolver, claims *auth.Claims, refs ...RoleRef) bool {
	for _, ref := range refs {
		if id, ok := Resolve(ctx, roles, ref); ok && id == claims.RoleID {
			return true
		}
	}
	return false
}

// Resolve returns the role id ref points at. Id references resolve without
// a lookup.
func Resolve(ctx context.Context, roles RoleResolver, ref RoleRef) (int64, bool) {
	if ref.ByID() {
		return ref.ID(), true
	}
	return roles.IDByName(ctx, ref.Name())
}

// RequirePermission admits callers holding at least one of codes through
// their current role
func RequirePermission(checker PermissionChecker, codes ...string) middleware.Guard {
	required := append([]string(nil), codes...)
	return middleware.NewGuard(middleware.StagePermission, func(r *http.Request, claims *auth.Claims) error {
		ok, err := checker.UserHasAny(r.Context(), claims.UserID, required...)
		if err != nil {
			return fmt.Errorf("failed to check permissions: %w", err)
		}
		if !ok {
			return &InsufficientPermissionError{Required: required}
		}
		return nil
	})
}
