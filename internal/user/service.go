package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/authcore/internal/auth"
	"github.com/example/authcore/internal/auth/github"
	"github.com/example/authcore/internal/model"
)

var (
	ErrUserExists         = errors.New("user: email already registered")
	ErrInvalidCredentials = errors.New("user: invalid email or password")
	ErrInvalidInput       = errors.New("user: invalid input")
	ErrPasswordTooLong    = fmt.Errorf("%w: password longer than %d bytes", ErrInvalidInput, auth.MaxSecretBytes)
)

// Session is what a successful login hands back to the client.
type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service owns user identity: registration, password and GitHub login, and
// resolution of access tokens to users.
type Service struct {
	store  Store
	tokens *auth.TokenService
	hasher *auth.Hasher
	log    *zap.Logger
}

func NewService(store Store, tokens *auth.TokenService, hasher *auth.Hasher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, hasher: hasher, log: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if len(in.Password) > auth.MaxSecretBytes {
		return nil, ErrPasswordTooLong
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	u, err := s.store.CreateUser(ctx, &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" || !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}
	return s.issue(u)
}

// rehash upgrades a stored hash to the current cost. Failure leaves the old
// hash in place, which still verifies.
func (s *Service) rehash(ctx context.Context, u *model.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = hash
}

// Verify resolves an access token to its user. Decode errors are returned
// unchanged; refresh tokens and unknown subjects are ErrNotAuthenticated.
func (s *Service) Verify(ctx context.Context, accessToken string) (*model.User, error) {
	sub, err := s.tokens.Decode(accessToken)
	if err != nil {
		return nil, err
	}
	if auth.IsRefreshSubject(sub) {
		return nil, auth.ErrNotAuthenticated
	}
	return s.lookupSubject(ctx, sub)
}

// Refresh trades a refresh token for a new token pair. Nothing is persisted,
// so the presented refresh token stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	sub, err := s.tokens.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	id, ok := auth.RefreshSubjectUserID(sub)
	if !ok {
		return nil, auth.ErrNotAuthenticated
	}
	u, err := s.lookupSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) lookupSubject(ctx context.Context, sub string) (*model.User, error) {
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", auth.ErrNotAuthenticated, sub)
	}
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %d not found", auth.ErrNotAuthenticated, id)
	}
	return u, nil
}

// LoginWithGitHub links a verified GitHub identity to a local user by email,
// creating a password-less user on first sight.
func (s *Service) LoginWithGitHub(ctx context.Context, gh *github.ExchangeResult) (*Session, error) {
	email := normalizeEmail(gh.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: github account has no public email", auth.ErrGitHubOAuthFailed)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u, err = s.store.CreateUser(ctx, &model.User{Name: gh.Username, Email: email, Role: model.RoleUser})
		if errors.Is(err, ErrUserExists) {
			// lost a race with a concurrent first login
			u, err = s.store.GetUserByEmail(ctx, email)
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("user created from github", zap.Int64("user_id", u.ID), zap.String("github_login", gh.Username))
	}
	return s.issue(u)
}

// EnsureAdmin creates the bootstrap admin when no user owns email yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("bootstrap lookup user: %w", err)
	}
	if existing != nil {
		if existing.Role != model.RoleAdmin {
			s.log.Warn("bootstrap admin email belongs to a non-admin user", zap.Int64("user_id", existing.ID))
		}
		return nil
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}
	created, err := s.store.CreateUser(ctx, &model.User{Name: "Admin", Email: email, PasswordHash: hash, Role: model.RoleAdmin})
	if err != nil {
		return fmt.Errorf("bootstrap create user: %w", err)
	}
	s.log.Info("bootstrap admin user created", zap.String("email", created.Email), zap.Int64("user_id", created.ID))
	return nil
}

func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) issue(u *model.User) (*Session, error) {
	access, err := s.tokens.CreateAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refresh, err := s.tokens.CreateRefreshToken(u)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}
