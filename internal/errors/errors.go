package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrTokenDecode         = errors.New("token cannot be decoded")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Session errors
	ErrTerminalSession = errors.New("terminal session error")

	// Tile errors
	ErrSessionCreation = errors.New("tile session creation failed")
	ErrUpstreamTile    = errors.New("upstream tile fetch failed")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
