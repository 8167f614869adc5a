package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/auth"
)

// Realm is the basic auth realm advertised on 401 responses.
const Realm = "medtrack"

// publicPaths never require credentials.
var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Auth returns a middleware that authenticates requests with
// authenticator. Probe and metrics paths and CORS preflight requests pass
// through. The medicine feed upgrade at /ws is authenticated like any
// other API call.
func Auth(authenticator auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			info, err := authenticator.Authenticate(r)
			if err != nil {
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
				writeAuthError(w, err)
				return
			}

			logger.Debug("authenticated",
				zap.String("subject", info.Subject),
				zap.String("method", string(info.Method)),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(auth.WithAuthInfo(r.Context(), info)))
		})
	}
}

// isPublicPath reports whether path is a public path or below one.
// /healthz is not public; /health/live is.
func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}

	for p := range publicPaths {
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}

	return false
}

type authErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeAuthError writes a 401 JSON body and a WWW-Authenticate challenge
// matching the failure.
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", challenge(err))
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(authErrorResponse{
		Code:    http.StatusUnauthorized,
		Message: err.Error(),
	})
}

func challenge(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return `Basic realm="` + Realm + `"`
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return "API-Key"
	case errors.Is(err, auth.ErrInvalidCert):
		return "mTLS"
	default:
		return `Basic realm="` + Realm + `", API-Key`
	}
}
