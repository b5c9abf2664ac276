package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/authcore/internal/auth"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeAuthError maps the auth error taxonomy onto responses. Every
// authentication failure is a 401 so clients treat it as "log in again".
func writeAuthError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated"
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		code, message = "TOKEN_EXPIRED", "Token has expired"
	case errors.Is(err, auth.ErrTokenDecode):
		code, message = "INVALID_TOKEN", "Token is invalid"
	case errors.Is(err, auth.ErrOAuthFormDataInvalid):
		status, code, message = http.StatusBadRequest, "OAUTH_FORM_DATA_INVALID", "grant_type must be authorization_code"
	case errors.Is(err, auth.ErrGitHubOAuthFailed):
		code, message = "GITHUB_OAUTH_FAILED", "GitHub authentication failed"
	case !isAuthError(err):
		status, code, message = http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, status, code, message)
}

// isAuthError reports whether err belongs to the auth taxonomy rather than
// being an internal failure.
func isAuthError(err error) bool {
	for _, target := range []error{
		auth.ErrNotAuthenticated,
		auth.ErrTokenExpired,
		auth.ErrTokenDecode,
		auth.ErrOAuthFormDataInvalid,
		auth.ErrGitHubOAuthFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
