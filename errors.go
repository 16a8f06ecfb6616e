package guard

import "errors"

// ErrProviderUnavailable is raised when a guard runs on a request that no
// auth provider middleware has seen. It is a wiring mistake.
var ErrProviderUnavailable = errors.New("auth state provider unavailable")

// ErrInvalidStatus is returned when decoding an unknown status name
var ErrInvalidStatus = errors.New("invalid auth status")

// ErrDuplicateRoute is returned when a route table lists a path twice
var ErrDuplicateRoute = errors.New("duplicate route path")

// ErrInvalidConfig wraps configuration validation failures
var ErrInvalidConfig = errors.New("invalid configuration")

// IsProviderUnavailable checks err, or a recovered panic value, for
// ErrProviderUnavailable.
func IsProviderUnavailable(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	return errors.Is(err, ErrProviderUnavailable)
}
