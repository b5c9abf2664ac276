package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/auth"
)

type fakeGitHub struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	userCalls   atomic.Int32
	tokenStatus int
	tokenBody   map[string]any
	userStatus  int
	userBody    map[string]any

	mu        sync.Mutex
	tokenReq  *http.Request
	tokenJSON tokenRequest
	userReq   *http.Request
}

func newFakeGitHub(t *testing.T, opts ...func(*fakeGitHub)) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "gho_123", "token_type": "bearer"},
		userStatus:  http.StatusOK,
		userBody:    map[string]any{"login": "octocat", "email": "octocat@github.com"},
	}
	for _, opt := range opts {
		opt(f)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		f.mu.Lock()
		f.tokenReq = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&f.tokenJSON)
		f.mu.Unlock()
		writeJSON(w, f.tokenStatus, f.tokenBody)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		f.mu.Lock()
		f.userReq = r.Clone(context.Background())
		f.mu.Unlock()
		writeJSON(w, f.userStatus, f.userBody)
	})
	mux.HandleFunc("/old-user", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/user", http.StatusMovedPermanently)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) client() *Client {
	return NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     f.server.URL + "/login/oauth/access_token",
		UserURL:      f.server.URL + "/user",
		HTTPClient:   f.server.Client(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validRequest() ExchangeRequest {
	return ExchangeRequest{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        "code-abc",
		RedirectURI: "https://app.example.com/callback",
	}
}

func TestGetTokenAndUser(t *testing.T) {
	f := newFakeGitHub(t)

	res, err := f.client().GetTokenAndUser(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, &ExchangeResult{Token: "gho_123", Username: "octocat", Email: "octocat@github.com"}, res)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, http.MethodPost, f.tokenReq.Method)
	require.Equal(t, "application/json", f.tokenReq.Header.Get("Accept"))
	require.Equal(t, tokenRequest{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Code:         "code-abc",
		RedirectURI:  "https://app.example.com/callback",
	}, f.tokenJSON)
	require.Equal(t, http.MethodGet, f.userReq.Method)
	require.Equal(t, "Bearer gho_123", f.userReq.Header.Get("Authorization"))
	require.Equal(t, "application/json", f.userReq.Header.Get("Accept"))
}

func TestProfileRequestKeepsInjectedClientPolicy(t *testing.T) {
	f := newFakeGitHub(t)
	var redirects atomic.Int32
	hc := f.server.Client()
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		redirects.Add(1)
		return nil
	}
	c := NewClient(Config{
		TokenURL:   f.server.URL + "/login/oauth/access_token",
		UserURL:    f.server.URL + "/old-user",
		HTTPClient: hc,
	})

	res, err := c.GetTokenAndUser(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "octocat", res.Username)
	require.EqualValues(t, 1, redirects.Load())
	require.EqualValues(t, 1, f.userCalls.Load())
}

func TestGetTokenAndUserRejectsGrantTypeWithoutNetwork(t *testing.T) {
	f := newFakeGitHub(t)

	for _, gt := range []string{"", "password", "refresh_token", "Authorization_Code"} {
		req := validRequest()
		req.GrantType = gt
		_, err := f.client().GetTokenAndUser(context.Background(), req)
		require.ErrorIs(t, err, auth.ErrOAuthFormDataInvalid)
	}
	require.Zero(t, f.tokenCalls.Load())
	require.Zero(t, f.userCalls.Load())
}

func TestTokenEndpointUnauthorizedSkipsProfile(t *testing.T) {
	f := newFakeGitHub(t, func(f *fakeGitHub) { f.tokenStatus = http.StatusUnauthorized })

	_, err := f.client().GetTokenAndUser(context.Background(), validRequest())
	require.ErrorIs(t, err, auth.ErrGitHubOAuthFailed)
	require.EqualValues(t, 1, f.tokenCalls.Load())
	require.Zero(t, f.userCalls.Load())
}

func TestTokenResponseWithoutAccessToken(t *testing.T) {
	f := newFakeGitHub(t, func(f *fakeGitHub) {
		f.tokenBody = map[string]any{"error": "bad_verification_code"}
	})

	_, err := f.client().GetTokenAndUser(context.Background(), validRequest())
	require.ErrorIs(t, err, auth.ErrGitHubOAuthFailed)
	require.Zero(t, f.userCalls.Load())
}

func TestProfileFailures(t *testing.T) {
	cases := map[string]func(f *fakeGitHub){
		"missing email": func(f *fakeGitHub) { f.userBody = map[string]any{"login": "octocat"} },
		"null email":    func(f *fakeGitHub) { f.userBody = map[string]any{"login": "octocat", "email": nil} },
		"missing login": func(f *fakeGitHub) { f.userBody = map[string]any{"email": "o@github.com"} },
		"server error":  func(f *fakeGitHub) { f.userStatus = http.StatusInternalServerError },
		"unauthorized":  func(f *fakeGitHub) { f.userStatus = http.StatusUnauthorized },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFakeGitHub(t, mutate)
			_, err := f.client().GetTokenAndUser(context.Background(), validRequest())
			require.ErrorIs(t, err, auth.ErrGitHubOAuthFailed)
			require.EqualValues(t, 1, f.userCalls.Load())
		})
	}
}

func TestTransportFailureIsTerminal(t *testing.T) {
	f := newFakeGitHub(t)
	c := f.client()
	f.server.Close()

	_, err := c.GetTokenAndUser(context.Background(), validRequest())
	require.ErrorIs(t, err, auth.ErrGitHubOAuthFailed)
}

func TestCancelledContextAbortsExchange(t *testing.T) {
	f := newFakeGitHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client().GetTokenAndUser(ctx, validRequest())
	require.ErrorIs(t, err, auth.ErrGitHubOAuthFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.userCalls.Load())
}

func TestAuthorizeURL(t *testing.T) {
	c := NewClient(Config{ClientID: "client-id"})
	raw := c.AuthorizeURL("xyz", "https://app.example.com/callback")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "github.com", u.Host)
	require.Equal(t, "/login/oauth/authorize", u.Path)
	q := u.Query()
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "xyz", q.Get("state"))
	require.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
}

func TestDefaultEndpoints(t *testing.T) {
	c := NewClient(Config{})
	require.Equal(t, "https://github.com/login/oauth/access_token", c.oauth.Endpoint.TokenURL)
	require.Equal(t, DefaultUserURL, c.userURL)
	require.NotNil(t, c.httpClient)
}
