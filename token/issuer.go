package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
	"github.com/agrisense/geogateway/users"
)

// Issuer mints and verifies the gateway's token pairs. Both halves of a pair
// are JWTs signed with the same key: the access token carries the user's
// identity and roles, the refresh token only the subject and a "refresh"
// token_use marker.
type Issuer struct {
	signer             Signer
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithTokenExpiry sets the lifetimes of access and refresh tokens.
func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.refreshTokenExpiry = refreshTokenExpiry
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initializes a new Issuer with the given signer and identity.
func NewIssuer(signer Signer, issuer, audience string, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}

	i := &Issuer{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		nowFunc:  time.Now,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessTokenExpiry == 0 {
		i.accessTokenExpiry = time.Hour
	}
	if i.refreshTokenExpiry == 0 {
		i.refreshTokenExpiry = 30 * 24 * time.Hour
	}

	return i, nil
}

// IssuePair creates a new access/refresh token pair for the given user.
func (i *Issuer) IssuePair(user *users.User, origin Origin) (Pair, error) {
	now := i.nowFunc()

	accessClaims := jwt.MapClaims{
		"iss":       i.issuer,
		"aud":       i.audience,
		"sub":       user.ID,
		"email":     user.Email,
		"name":      user.FirstName + " " + user.LastName,
		"roles":     users.RolesToStrings(user.Roles),
		"origin":    string(origin),
		"token_use": "access",
		"iat":       now.Unix(),
		"exp":       now.Add(i.accessTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}

	accessToken, err := i.signer.Sign(accessClaims)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Issuer.IssuePair] sign access token")
	}

	refreshClaims := jwt.MapClaims{
		"iss":       i.issuer,
		"aud":       i.audience,
		"sub":       user.ID,
		"origin":    string(origin),
		"token_use": "refresh",
		"iat":       now.Unix(),
		"exp":       now.Add(i.refreshTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}

	refreshToken, err := i.signer.Sign(refreshClaims)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Issuer.IssuePair] sign refresh token")
	}

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks the signature and expiry of an access token and returns
// its claim set.
func (i *Issuer) VerifyAccess(rawToken string) (*Claims, error) {
	claims, err := i.verify(rawToken, "access")
	if err != nil {
		return nil, err
	}
	if claims.Expired(i.nowFunc()) {
		return nil, errors.Wrap(gwerrors.ErrTokenExpired, "[Issuer.VerifyAccess]")
	}
	return claims, nil
}

// VerifyRefresh checks the signature and expiry of a refresh token and
// returns its claim set. An expired refresh token yields
// ErrRefreshTokenExpired so callers can force re-authentication.
func (i *Issuer) VerifyRefresh(rawToken string) (*Claims, error) {
	claims, err := i.verify(rawToken, "refresh")
	if err != nil {
		return nil, err
	}
	if claims.Expired(i.nowFunc()) {
		return nil, errors.Wrap(gwerrors.ErrRefreshTokenExpired, "[Issuer.VerifyRefresh]")
	}
	return claims, nil
}

// verify validates the signature only. Expiry is checked by the callers
// against the injectable clock, never by the library's own claim validation.
func (i *Issuer) verify(rawToken, expectedUse string) (*Claims, error) {
	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, errors.Wrapf(gwerrors.ErrTokenDecode, "[Issuer.verify] %v", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(gwerrors.ErrTokenDecode, "[Issuer.verify] error extracting claims")
	}

	claims := claimsFromMap(mapClaims)
	if claims.TokenUse != expectedUse {
		return nil, errors.Wrapf(gwerrors.ErrTokenDecode, "[Issuer.verify] token_use %q, want %q", claims.TokenUse, expectedUse)
	}
	return claims, nil
}
