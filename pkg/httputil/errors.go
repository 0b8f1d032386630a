package httputil

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Messages written for gate rejections
const (
	MsgMissingToken       = "Missing authentication token"
	MsgInvalidTokenFormat = "Invalid token format"
	MsgTokenExpired       = "Token has expired"
	MsgInvalidToken       = "Invalid token"
	MsgInsufficient       = "Insufficient permissions"
	MsgAccessDenied       = "Access denied"
)

// WriteAuthError writes the response for an access gate rejection and
// reports whether err belonged to the gate taxonomy at all
func WriteAuthError(w http.ResponseWriter, err error) bool {
	var permErr *auth.InsufficientPermissionError
	switch {
	case errors.Is(err, auth.ErrInvalidAuthHeader):
		WriteUnauthorized(w, MsgInvalidTokenFormat)
	case errors.Is(err, auth.ErrAuthenticationRequired):
		WriteUnauthorized(w, MsgMissingToken)
	case errors.Is(err, auth.ErrTokenExpired):
		WriteUnauthorized(w, MsgTokenExpired)
	case errors.Is(err, auth.ErrTokenInvalid):
		WriteUnauthorized(w, MsgInvalidToken)
	case errors.As(err, &permErr):
		WriteJSON(w, http.StatusForbidden, ErrorResponse{
			Error:               MsgInsufficient,
			RequiredPermissions: permErr.Required,
		})
	case errors.Is(err, auth.ErrInsufficientRole):
		WriteForbidden(w, MsgInsufficient)
	case errors.Is(err, auth.ErrAccessDenied):
		WriteForbidden(w, MsgAccessDenied)
	default:
		return false
	}
	return true
}

// WriteServiceError maps an error returned by a store or service:
// gate errors as above, storage.ErrNotFound to 404 with notFound, a
// *storage.ConflictError or *storage.InvalidError to 400 with its message,
// anything else to a logged 500 with failure
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, notFound, failure string) {
	if WriteAuthError(w, err) {
		return
	}

	var conflict *storage.ConflictError
	var invalid *storage.InvalidError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		WriteNotFound(w, notFound)
	case errors.As(err, &conflict):
		WriteBadRequest(w, conflict.Message)
	case errors.As(err, &invalid):
		WriteBadRequest(w, invalid.Message)
	default:
		observability.FromContext(r.Context()).WithError(err).Error(failure)
		WriteInternalError(w, failure)
	}
}
