package auth

import "errors"

var (
	// ErrNotAuthenticated covers missing or malformed credentials, failed role
	// checks and any auth failure surfaced at the request boundary.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
	// ErrTokenExpired means the signature verified but the token is past exp.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenDecode means the token could not be verified or parsed.
	ErrTokenDecode = errors.New("auth: token decode failed")
	// ErrOAuthFormDataInvalid rejects an exchange whose grant_type is not authorization_code.
	ErrOAuthFormDataInvalid = errors.New("auth: oauth form data invalid")
	// ErrGitHubOAuthFailed covers every provider-side failure of the GitHub exchange.
	ErrGitHubOAuthFailed = errors.New("auth: github oauth failed")
)
