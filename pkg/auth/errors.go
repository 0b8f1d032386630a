package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Gate failures. Each one ends the request; httputil.WriteAuthError maps
// them onto 401 and 403 responses.
var (
	// ErrAuthenticationRequired means no bearer token was presented
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInvalidAuthHeader means the Authorization header is not "Bearer <token>"
	ErrInvalidAuthHeader = fmt.Errorf("%w: malformed authorization header", ErrAuthenticationRequired)

	// ErrTokenInvalid covers bad signatures, unexpected algorithms and malformed payloads
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired means the token was well formed but is past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrInsufficientRole means the caller's role is not in the route's allow-list
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrInsufficientPermission is matched by every *InsufficientPermissionError
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrAccessDenied is a resource-level rejection (org scope or ownership)
	ErrAccessDenied = errors.New("access denied")
)

// Login failures
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// InsufficientPermissionError lists the codes any one of which would have
// satisfied the failed check
type InsufficientPermissionError struct {
	Required []string
}

func (e *InsufficientPermissionError) Error() string {
	return "insufficient permission: requires one of " + strings.Join(e.Required, ", ")
}

// Is reports whether target is ErrInsufficientPermission
func (e *InsufficientPermissionError) Is(target error) bool {
	return target == ErrInsufficientPermission
}

// IsAuthError reports whether err belongs to the gate taxonomy
func IsAuthError(err error) bool {
	for _, target := range []error{
		ErrAuthenticationRequired,
		ErrTokenInvalid,
		ErrTokenExpired,
		ErrInsufficientRole,
		ErrInsufficientPermission,
		ErrAccessDenied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
