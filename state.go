package guard

import "fmt"

// Status is the authentication status of a session
type Status int

const (
	// StatusLoading means an authentication check is still in flight
	StatusLoading Status = iota
	// StatusAuthenticated means the session has a signed in user
	StatusAuthenticated
	// StatusUnauthenticated means the session has no user
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String
func ParseStatus(s string) (Status, error) {
	switch s {
	case "loading":
		return StatusLoading, nil
	case "authenticated":
		return StatusAuthenticated, nil
	case "unauthenticated":
		return StatusUnauthenticated, nil
	default:
		return StatusLoading, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusLoading, StatusAuthenticated, StatusUnauthenticated:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// User is the signed in user as seen by guards and pages
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

// State is a read only snapshot of a session's authentication
type State struct {
	Status  Status `json:"status"`
	User    *User  `json:"user,omitempty"`
	Version uint64 `json:"version"`
}

// Loading returns the initial state of every session
func Loading() State {
	return State{Status: StatusLoading}
}

// Authenticated returns a settled state for user
func Authenticated(user *User) State {
	return State{Status: StatusAuthenticated, User: user}
}

// Unauthenticated returns a settled state with no user
func Unauthenticated() State {
	return State{Status: StatusUnauthenticated}
}

func (s State) IsLoading() bool {
	return s.Status == StatusLoading
}

func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// IsAdmin is false for any state without a user, whatever the status says.
func (s State) IsAdmin() bool {
	return s.IsAuthenticated() && s.User != nil && s.User.Role.IsAdmin()
}

// Normalize drops a user attached to a state that is not authenticated.
// An authenticated state missing its user is left as is; guards treat it
// as a non admin.
func (s State) Normalize() State {
	if s.Status != StatusAuthenticated {
		s.User = nil
	}
	return s
}

// Source exposes the current auth state of a session. Implementations must
// return the latest value on every call.
type Source interface {
	Snapshot() State
}

// StaticSource always reports the same state
type StaticSource State

func (s StaticSource) Snapshot() State {
	return State(s).Normalize()
}
