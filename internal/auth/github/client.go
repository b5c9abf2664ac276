// Package github exchanges a GitHub OAuth authorization code for the
// provider token and the profile of the user who granted it.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	ghendpoint "golang.org/x/oauth2/github"

	"github.com/example/authcore/internal/auth"
)

const (
	// GrantTypeAuthorizationCode is the only grant type accepted by GetTokenAndUser.
	GrantTypeAuthorizationCode = "authorization_code"

	DefaultUserURL = "https://api.github.com/user"

	maxBodyBytes = 1 << 20
)

// Config holds the OAuth application credentials. Empty URLs fall back to
// the public GitHub endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	UserURL      string
	HTTPClient   *http.Client
}

// ExchangeRequest is the callback payload carrying the authorization code.
type ExchangeRequest struct {
	GrantType   string `json:"grant_type"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// ExchangeResult is the verified GitHub identity. It is never persisted.
type ExchangeResult struct {
	Token    string
	Username string
	Email    string
}

// Client performs the two-call code exchange. It holds only immutable
// configuration and is safe for concurrent use.
type Client struct {
	oauth      oauth2.Config
	userURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	endpoint := ghendpoint.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	userURL := cfg.UserURL
	if userURL == "" {
		userURL = DefaultUserURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
		},
		userURL:    userURL,
		httpClient: httpClient,
	}
}

// AuthorizeURL returns the GitHub page where the user grants access.
func (c *Client) AuthorizeURL(state, redirectURI string) string {
	cfg := c.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

// GetTokenAndUser exchanges req.Code for a provider token and loads the
// profile it belongs to. Codes are single use, so nothing is retried.
func (c *Client) GetTokenAndUser(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, auth.ErrOAuthFormDataInvalid
	}
	token, err := c.exchangeCode(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return nil, err
	}
	username, email, err := c.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{Token: token, Username: username, Email: email}, nil
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

func (c *Client) exchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	body, err := json.Marshal(tokenRequest{
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode token request: %w", auth.ErrGitHubOAuthFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %w", auth.ErrGitHubOAuthFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		AccessToken *string `json:"access_token"`
	}
	if err := doJSON(c.httpClient, req, &out); err != nil {
		return "", fmt.Errorf("%w: token exchange: %w", auth.ErrGitHubOAuthFailed, err)
	}
	if out.AccessToken == nil || *out.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", auth.ErrGitHubOAuthFailed)
	}
	return *out.AccessToken, nil
}

func (c *Client) fetchUser(ctx context.Context, token string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: build user request: %w", auth.ErrGitHubOAuthFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	client := *c.httpClient
	client.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   c.httpClient.Transport,
	}

	var out struct {
		Login *string `json:"login"`
		Email *string `json:"email"`
	}
	if err := doJSON(&client, req, &out); err != nil {
		return "", "", fmt.Errorf("%w: user profile: %w", auth.ErrGitHubOAuthFailed, err)
	}
	if out.Login == nil || out.Email == nil {
		return "", "", fmt.Errorf("%w: user profile is missing login or email", auth.ErrGitHubOAuthFailed)
	}
	return *out.Login, *out.Email, nil
}

func doJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
