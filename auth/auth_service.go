package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
)

// Result is returned by the login operations: the authenticated identity and
// the freshly issued token pair.
type Result struct {
	User *users.User
	Pair token.Pair
}

// Service authenticates dashboard users and issues token pairs. It also
// implements session.Refresher: the refresh exchange the session Manager
// performs when an access token has expired.
type Service struct {
	users   users.UserRepo
	issuer  *token.Issuer
	nowTime func() time.Time // nowTime function (injectable for testing)
	log     zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService initializes a new authentication Service with required
// dependencies.
func NewService(userRepo users.UserRepo, issuer *token.Issuer, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[NewService] user repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] token issuer is required")
	}

	s := &Service{
		users:   userRepo,
		issuer:  issuer,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Login checks the credentials and issues a token pair on success.
func (s *Service) Login(email, password string) (*Result, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, errors.Wrap(UserNotFoundErr, "[Service.Login]")
	}

	if user.Blocked {
		return nil, errors.Wrap(UserBlockedErr, "[Service.Login]")
	}

	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, UserPasswordsDontMatchErr
	}

	user.LastLogin = s.nowTime()
	user.LoggedIn = true
	if err := s.users.Upsert(user); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] users.Upsert")
	}

	pair, err := s.issuer.IssuePair(user, token.OriginLogin)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] issuer.IssuePair")
	}

	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return &Result{User: user, Pair: pair}, nil
}

// Guest produces an ephemeral guest identity with a token pair. Guest users
// are never persisted; their identity lives entirely in the token claims.
func (s *Service) Guest() (*Result, error) {
	guest := &users.User{
		ID:       "guest-" + uuid.New().String(),
		Username: "guest",
		Roles:    []users.RoleType{users.RoleGuest},
		Verified: true,
	}

	pair, err := s.issuer.IssuePair(guest, token.OriginGuest)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Guest] issuer.IssuePair")
	}

	return &Result{User: guest, Pair: pair}, nil
}

// Refresh exchanges a refresh token for a new token pair. It implements
// session.Refresher.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*session.RefreshResult, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, InvalidRefreshTokenErr.Error())
	}

	user, err := s.refreshUser(claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.IssuePair(user, claims.Origin)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] issuer.IssuePair")
	}

	return &session.RefreshResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout marks the user as signed out. Tokens are stateless; the client
// destroys its pair and the terminal-session path takes care of the rest.
func (s *Service) Logout(email string) error {
	if err := s.users.SetLoggedIn(email, false); err != nil {
		return errors.Wrap(err, "[Service.Logout] users.SetLoggedIn")
	}
	return nil
}

func (s *Service) refreshUser(claims *token.Claims) (*users.User, error) {
	if claims.Origin == token.OriginGuest {
		// Guest identities are not persisted; rebuild from the claim set.
		return &users.User{
			ID:       claims.Subject,
			Username: "guest",
			Roles:    []users.RoleType{users.RoleGuest},
			Verified: true,
		}, nil
	}

	user, err := s.users.GetByID(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(UserNotFoundErr, "[Service.Refresh]")
	}
	if user.Blocked {
		return nil, errors.Wrap(UserBlockedErr, "[Service.Refresh]")
	}
	return user, nil
}
