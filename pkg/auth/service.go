package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Login outcomes recorded on the login attempts metric
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginError   = "error"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Service exchanges credentials for access tokens
type Service struct {
	users   UserFinder
	roles   RoleLookup
	issuer  *Issuer
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates a login service. metrics may be nil.
func NewService(users UserFinder, roles RoleLookup, issuer *Issuer, metrics *observability.Metrics) *Service {
	return &Service{
		users:   users,
		roles:   roles,
		issuer:  issuer,
		metrics: metrics,
		now:     time.Now,
	}
}

// Login checks email and password against an active account, records the
// login and returns a token carrying the account's current role
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	result, err := s.login(ctx, email, password)
	switch {
	case err == nil:
		s.metrics.RecordLogin(LoginSuccess)
		s.metrics.RecordTokenIssued()
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMissingCredentials):
		s.metrics.RecordLogin(LoginFailure)
	default:
		s.metrics.RecordLogin(LoginError)
	}
	return result, err
}

func (s *Service) login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	roleName, err := s.roles.RoleNameByID(ctx, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role %d: %w", user.RoleID, err)
	}
	user.RoleName = roleName

	token, err := s.issuer.Issue(IdentityOf(user, roleName))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLogin = &now

	return &LoginResult{Token: token, User: user}, nil
}
