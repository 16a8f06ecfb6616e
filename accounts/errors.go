package accounts

import "errors"

// ErrEmployeeNotFound is returned when no employee matches a lookup
var ErrEmployeeNotFound = errors.New("employee not found")

// ErrInvalidCredentials is returned for an unknown email, a wrong password
// or an inactive account, without telling which.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned when signing up with a registered email
var ErrEmailTaken = errors.New("email already registered")

// ErrEmptyPassword is returned when hashing an empty password
var ErrEmptyPassword = errors.New("password must not be empty")

// ErrInvalidResetToken is returned for an unknown, used or expired
// password reset token
var ErrInvalidResetToken = errors.New("invalid or expired token")

// ErrWrongPassword is returned when the current password given to a
// password change does not match
var ErrWrongPassword = errors.New("old password is incorrect")
