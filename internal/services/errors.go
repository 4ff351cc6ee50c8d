package services

import (
	"errors"
	"fmt"
)

// ErrUserAlreadyExists is returned when a record with the same username or email is present.
var ErrUserAlreadyExists = errors.New("user with this email or username already exists")

// Validation messages returned to the client verbatim.
const (
	MsgUsernameRequired = "Username is required"
	MsgEmailRequired    = "Email is required"
	MsgInvalidEmail     = "Invalid email format"
	MsgPasswordRequired = "Password is required"
	MsgPasswordTooShort = "Password must be at least 8 characters long"
)

// ValidationError describes the first signup field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StoreConnectError is returned when the user store cannot be reached.
type StoreConnectError struct {
	Store string
	Err   error
}

func (e *StoreConnectError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Store, e.Err)
}

func (e *StoreConnectError) Unwrap() error {
	return e.Err
}
