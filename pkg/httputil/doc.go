// Package httputil provides JSON response helpers, request parsing and the
// common HTTP middleware chain.
//
// Error bodies are always {"error": message}. Rejections from the access
// gate go through WriteAuthError so every route reports them the same way:
//
//	401 Missing authentication token | Invalid token format | Token has expired | Invalid token
//	403 {"error": "Insufficient permissions", "required_permissions": [...]}
//	403 Access denied
//
// Handlers that call stores use WriteServiceError, which adds the 404,
// duplicate (400) and 500 cases:
//
//	dept, err := h.store.Get(ctx, id)
//	if err != nil {
//		httputil.WriteServiceError(w, r, err, "Department not found", "Failed to load department")
//		return
//	}
//
// The middleware chain used by the API server is:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//	)
package httputil
