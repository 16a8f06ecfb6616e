package session

import "errors"

// ErrTokenExpired is returned for a token past its expiration
var ErrTokenExpired = errors.New("token is expired")

// ErrTokenMalformed is returned for a token that does not parse or verify
var ErrTokenMalformed = errors.New("token is malformed")

// ErrUnableToDecodeSession unable to decode claims from the token
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrNoUser is returned when generating a token without a user
var ErrNoUser = errors.New("session has no user")

// ErrInvalidSessionID is returned for a session id that is not a uuid
var ErrInvalidSessionID = errors.New("invalid session id")
