package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/authcore/internal/model"
)

// Verifier resolves an access token to the user it was issued for.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*model.User, error)
}

// Authenticator gates requests on a bearer access token.
type Authenticator struct {
	verifier Verifier
}

func NewAuthenticator(v Verifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// ExtractCredential returns the bearer credential of r. A missing header,
// another scheme or an empty credential yields ErrNotAuthenticated.
func ExtractCredential(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNotAuthenticated
	}
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNotAuthenticated
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrNotAuthenticated
	}
	return credential, nil
}

// CurrentUser resolves credential through the verifier. Errors are returned
// as the verifier produced them.
func (a *Authenticator) CurrentUser(ctx context.Context, credential string) (*model.User, error) {
	return a.verifier.Verify(ctx, credential)
}

// Authenticate extracts the bearer credential of r and resolves it.
func (a *Authenticator) Authenticate(r *http.Request) (*model.User, error) {
	credential, err := ExtractCredential(r)
	if err != nil {
		return nil, err
	}
	return a.CurrentUser(r.Context(), credential)
}

// RequireAdmin passes u through unchanged when it holds the admin role.
func RequireAdmin(u *model.User) (*model.User, error) {
	if u == nil || u.Role != model.RoleAdmin {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

type userContextKey struct{}

func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*model.User)
	return u, ok && u != nil
}
