package users

import (
	"fmt"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a dashboard role
type RoleType string

const (
	RoleAdmin   RoleType = "admin"   // Can manage users and gateway settings
	RoleAnalyst RoleType = "analyst" // Can run analyses (yield prediction, burnt-area reports)
	RoleViewer  RoleType = "viewer"  // Read-only map and chart access
	RoleGuest   RoleType = "guest"   // Anonymous access to public layers only
)

type User struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the user
	Email        string    `json:"email,omitempty"`       // User's email address
	Username     string    `json:"username,omitempty"`    // Unique username
	PasswordHash string    `json:"-"`                     // Hashed version of the user's password - never serialize
	FirstName    string    `json:"first_name,omitempty"`  // First name of the user
	LastName     string    `json:"last_name,omitempty"`   // Last name of the user
	DateJoined   time.Time `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last time the user logged in

	Roles []RoleType `json:"roles,omitempty"` // Dashboard roles

	Verified bool `json:"verified,omitempty"` // Verified, has the user verified who they are
	Blocked  bool `json:"blocked,omitempty"`  // Blocked, has the user been blocked from logging in
	LoggedIn bool `json:"loggedIn,omitempty"` // LoggedIn, Is the user currently loggedIn
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HasRole checks if the user holds a specific role
func (u *User) HasRole(role RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the user has admin privileges
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// RolesToStrings converts role types to their string form for token claims
func RolesToStrings(roles []RoleType) []string {
	stringSlice := make([]string, 0, len(roles))
	for _, r := range roles {
		stringSlice = append(stringSlice, string(r))
	}
	return stringSlice
}

// RolesFromStrings converts raw claim strings back to role types
func RolesFromStrings(roles []string) []RoleType {
	roleSlice := make([]RoleType, 0, len(roles))
	for _, r := range roles {
		roleSlice = append(roleSlice, RoleType(r))
	}
	return roleSlice
}
