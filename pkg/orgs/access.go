package orgs

import (
	"github.com/platinummonkey/scorecard/pkg/auth"
)

// ErrAccessDenied is returned when a resource belongs to another organization
var ErrAccessDenied = auth.ErrAccessDenied

// IsOrgAccessible reports whether a caller in callerOrg may access a
// resource in resourceOrg. Only two non-nil, different ids deny.
func IsOrgAccessible(callerOrg, resourceOrg *int64) bool {
	if callerOrg == nil || resourceOrg == nil {
		return true
	}
	return *callerOrg == *resourceOrg
}

// CheckAccess returns ErrAccessDenied when the resource is out of the
// caller's organization
func CheckAccess(claims *auth.Claims, resourceOrg *int64) error {
	if claims == nil || IsOrgAccessible(claims.OrgID, resourceOrg) {
		return nil
	}
	return ErrAccessDenied
}

// DefaultOrg returns the org id for a new resource: the requested one when
// given, otherwise the caller's
func DefaultOrg(claims *auth.Claims, requested *int64) *int64 {
	if requested != nil {
		return requested
	}
	if claims == nil {
		return nil
	}
	return claims.OrgID
}

// ListScope returns the org id a list must be filtered to, or nil for an
// unscoped caller
func ListScope(claims *auth.Claims) *int64 {
	if claims == nil {
		return nil
	}
	return claims.OrgID
}
