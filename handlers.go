package main

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/authcore/internal/auth"
	"github.com/example/authcore/internal/auth/github"
	"github.com/example/authcore/internal/model"
	"github.com/example/authcore/internal/user"
)

type sessionResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int64       `json:"expiresIn"`
}

func (a *App) writeSession(w http.ResponseWriter, status int, s *user.Session) {
	writeJSON(w, status, sessionResponse{
		User:         s.User,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(a.Tokens.AccessTTL().Seconds()),
	})
}

type creds struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	s, err := a.Users.Register(r.Context(), user.RegisterInput{Name: c.Name, Email: c.Email, Password: c.Password})
	switch {
	case errors.Is(err, user.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Password must be at most 72 bytes")
		return
	case errors.Is(err, user.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	case errors.Is(err, user.ErrUserExists):
		writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
		return
	case err != nil:
		a.Log.Error("register failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register user")
		return
	}
	a.writeSession(w, http.StatusCreated, s)
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	s, err := a.Users.Login(r.Context(), c.Email, c.Password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	if err != nil {
		a.Log.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in")
		return
	}
	a.writeSession(w, http.StatusOK, s)
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	s, err := a.Users.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		a.authFailed(w, r, err)
		return
	}
	a.writeSession(w, http.StatusOK, s)
}

// HandleGitHubAuthorize redirects the browser to the GitHub consent page.
// GET /api/v1/auth/github/authorize?redirect_uri=...&state=...
func (a *App) HandleGitHubAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	http.Redirect(w, r, a.GitHub.AuthorizeURL(state, r.URL.Query().Get("redirect_uri")), http.StatusFound)
}

// HandleGitHubCallback exchanges an authorization code for a local session.
// POST /api/v1/auth/github, form or JSON body.
func (a *App) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	in, err := decodeExchangeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	identity, err := a.GitHub.GetTokenAndUser(r.Context(), in)
	if err != nil {
		a.authFailed(w, r, err)
		return
	}
	s, err := a.Users.LoginWithGitHub(r.Context(), identity)
	if err != nil {
		a.authFailed(w, r, err)
		return
	}
	a.writeSession(w, http.StatusOK, s)
}

func decodeExchangeRequest(r *http.Request) (github.ExchangeRequest, error) {
	var in github.ExchangeRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&in)
		return in, err
	}
	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.GrantType = r.PostForm.Get("grant_type")
	in.Code = r.PostForm.Get("code")
	in.RedirectURI = r.PostForm.Get("redirect_uri")
	return in, nil
}

// HandleTokenValidate decodes a token without resolving the user.
// GET /api/v1/auth/validate?token=...
func (a *App) HandleTokenValidate(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr, _ = auth.ExtractCredential(r)
	}
	if tokenStr == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	sub, err := a.Tokens.Decode(tokenStr)
	if err != nil {
		a.authFailed(w, r, err)
		return
	}
	kind := "access"
	if auth.IsRefreshSubject(sub) {
		kind = "refresh"
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"subject":   sub,
		"tokenKind": kind,
	})
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	writeSuccess(w, http.StatusOK, u)
}

// HandleListUsers lists every user. Admin only.
func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Users.List(r.Context())
	if err != nil {
		a.Log.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list users")
		return
	}
	writeSuccess(w, http.StatusOK, users)
}

func (a *App) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("request_id", w.Header().Get(requestIDHeader)),
		zap.Error(err),
	}
	if isAuthError(err) {
		a.Log.Info("authentication failed", fields...)
	} else {
		a.Log.Error("request failed", fields...)
	}
	writeAuthError(w, err)
}
