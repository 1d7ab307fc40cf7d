// Package service implements requester account registration and login.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"migrant-health-access/backend/internal/clock"
	"migrant-health-access/backend/internal/requester/domain"
	requesterrepo "migrant-health-access/backend/internal/requester/repository"
	"migrant-health-access/backend/internal/security"
)

// Sentinel errors for the auth service; the handler maps them to HTTP status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrWeakPassword           = errors.New("password must be at least 8 characters")
	ErrInvalidRole            = errors.New("unknown role")
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// AuthResult holds the outcome of Register (requester id only) or Login
// (access token included).
type AuthResult struct {
	RequesterID string
	Role        domain.Role
	AccessToken string
	ExpiresAt   time.Time
}

// AuthService implements password register and login for requester accounts.
type AuthService struct {
	requesters requesterrepo.Repository
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	clk        clock.Clock
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(requesters requesterrepo.Repository, hasher *security.Hasher, tokens *security.TokenProvider, clk clock.Clock) *AuthService {
	if clk == nil {
		clk = clock.System{}
	}
	return &AuthService{requesters: requesters, hasher: hasher, tokens: tokens, clk: clk}
}

// Register creates a requester account with the given email, password, and
// role. Returns AuthResult with RequesterID only; the caller must Login to
// obtain a token.
func (s *AuthService) Register(ctx context.Context, email, password, name string, role domain.Role) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !emailRe.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if role == "" {
		role = domain.RoleClinician
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	existing, err := s.requesters.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	req := &domain.Requester{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requesters.Create(ctx, req); err != nil {
		return nil, err
	}
	return &AuthResult{RequesterID: req.ID, Role: req.Role}, nil
}

// Login authenticates with email and password and returns an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	req, err := s.requesters.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if req == nil || req.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(req.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, expiresAt, err := s.tokens.IssueAccess(req.ID, string(req.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		RequesterID: req.ID,
		Role:        req.Role,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
