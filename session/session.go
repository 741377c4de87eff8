package session

import (
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
)

// State is the lifecycle state of the managed token pair.
type State int

const (
	StateValid State = iota
	StateRefreshNeeded
	StateRefreshing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshNeeded:
		return "refresh_needed"
	case StateRefreshing:
		return "refreshing"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

// ErrorState is the tri-state error flag layered on top of the token pair.
type ErrorState string

const (
	ErrorNone       ErrorState = ""
	ErrorRefreshing ErrorState = "refreshing"
	ErrorTerminal   ErrorState = "terminal"
)

// Session is the shared session state for one dashboard client: the token
// pair plus the profile attached to it. All staleness decisions go through
// Manager.Evaluate rather than reading the pair directly.
type Session struct {
	Pair token.Pair
	User *users.User
	Err  ErrorState
}

// UserUpdate carries profile fields changed by a user-initiated update.
// Empty fields are left untouched.
type UserUpdate struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}
