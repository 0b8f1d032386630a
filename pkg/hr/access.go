package hr

import (
	"github.com/platinummonkey/scorecard/pkg/auth"
)

// IsSelf reports whether claims belong to the account bound to employee e
func IsSelf(claims *auth.Claims, e *Employee) bool {
	return claims != nil && claims.EmployeeID != nil && *claims.EmployeeID == e.ID
}

// IsManagerOf reports whether the caller is e's reporting manager
func IsManagerOf(claims *auth.Claims, e *Employee) bool {
	return claims != nil && claims.EmployeeID != nil &&
		e.ReportingManagerID != nil && *e.ReportingManagerID == *claims.EmployeeID
}
