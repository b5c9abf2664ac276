package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/authcore/internal/model"
)

const (
	DefaultAccessTTL  = 2 * time.Hour
	DefaultRefreshTTL = 24 * time.Hour

	// RefreshSuffix marks the subject of a refresh token. There is no other
	// claim telling access and refresh tokens apart.
	RefreshSuffix = ".refresh"
)

// TokenConfig holds the process-wide signing configuration.
type TokenConfig struct {
	Secret     []byte
	Algorithm  string
	Location   *time.Location
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenService issues and validates signed, self-contained session tokens.
// It keeps no server-side state: validity is signature plus expiry.
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	loc        *time.Location
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token service: empty secret")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token service: unsupported algorithm %q", alg)
	}
	s := &TokenService{
		secret:     cfg.Secret,
		method:     method,
		loc:        cfg.Location,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *TokenService) CreateAccessToken(u *model.User) (string, error) {
	return s.encode(strconv.FormatInt(u.ID, 10), s.accessTTL)
}

func (s *TokenService) CreateRefreshToken(u *model.User) (string, error) {
	return s.encode(strconv.FormatInt(u.ID, 10)+RefreshSuffix, s.refreshTTL)
}

func (s *TokenService) encode(sub string, ttl time.Duration) (string, error) {
	now := s.now().In(s.loc)
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// Decode verifies token and returns its subject. It fails with
// ErrTokenExpired when the signature is good but exp has passed, and with
// ErrTokenDecode for everything else.
func (s *TokenService) Decode(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTokenDecode, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrTokenDecode)
	}
	return claims.Subject, nil
}

// AccessTTL is the lifetime given to access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IsRefreshSubject reports whether sub belongs to a refresh token.
func IsRefreshSubject(sub string) bool {
	return strings.HasSuffix(sub, RefreshSuffix)
}

// RefreshSubjectUserID strips the refresh marker from sub. ok is false when
// sub is not a refresh subject.
func RefreshSubjectUserID(sub string) (id string, ok bool) {
	return strings.CutSuffix(sub, RefreshSuffix)
}
