package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
)

// Claims is the structured claim set embedded in every token the gateway
// issues. Both the access and the refresh token carry at least an expiry
// instant, so staleness can be decided without a network call.
type Claims struct {
	ID        string    // jti
	Subject   string    // sub - user ID
	Issuer    string    // iss
	Audience  string    // aud
	Email     string
	Name      string
	Roles     []string
	Origin    Origin    // how the pair was obtained (login or guest)
	TokenUse  string    // "access" or "refresh"
	IssuedAt  time.Time // iat
	ExpiresAt time.Time // exp
}

// Expired reports whether the claim set's expiry instant has passed.
// A claim set without an expiry is treated as already expired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// Decode extracts the claim set from a raw token without verifying the
// signature. This is the local, no-round-trip decode used by the session
// evaluator; signature verification is a separate, server-side concern.
// A token that cannot be parsed yields ErrTokenDecode.
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrap(gwerrors.ErrTokenDecode, "[token.Decode] empty token")
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(gwerrors.ErrTokenDecode, "[token.Decode] %v", err)
	}

	mapClaims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(gwerrors.ErrTokenDecode, "[token.Decode] error extracting claims")
	}

	return claimsFromMap(mapClaims), nil
}

func claimsFromMap(mapClaims jwt.MapClaims) *Claims {
	jti, _ := mapClaims["jti"].(string)
	sub, _ := mapClaims["sub"].(string)
	iss, _ := mapClaims["iss"].(string)
	aud, _ := mapClaims["aud"].(string)
	email, _ := mapClaims["email"].(string)
	name, _ := mapClaims["name"].(string)
	origin, _ := mapClaims["origin"].(string)
	tokenUse, _ := mapClaims["token_use"].(string)

	var roles []string
	if claimRoles, ok := mapClaims["roles"].([]interface{}); ok {
		roles = interfaceArrayToString(claimRoles)
	}

	claims := &Claims{
		ID:       jti,
		Subject:  sub,
		Issuer:   iss,
		Audience: aud,
		Email:    email,
		Name:     name,
		Roles:    roles,
		Origin:   Origin(origin),
		TokenUse: tokenUse,
	}

	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims
}

func interfaceArrayToString(iArray []interface{}) []string {
	stringSlice := make([]string, 0)
	for _, v := range iArray {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}
