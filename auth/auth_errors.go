package auth

import "errors"

var (
	UserNotFoundErr           = errors.New("user not found")
	UserBlockedErr            = errors.New("user blocked")
	UserPasswordsDontMatchErr = errors.New("user passwords not matched")
	InvalidRefreshTokenErr    = errors.New("invalid refresh token")
)
