// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteMessage(w, http.StatusOK, "Logged out.")
//	httputil.WriteUnauthorized(w, "Unauthorized: Invalid token.", err)
//	httputil.WriteValidationErrors(w, map[string][]string{"username": {"..."}})
//
// # Request Parsing
//
//	var req LoginRequest
//	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
//		httputil.WriteBadRequest(w, "Invalid request body.")
//		return
//	}
//
//	token := httputil.BearerToken(r)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication middleware
package httputil
