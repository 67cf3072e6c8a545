package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update matched no row
	ErrConflict = errors.New("conflict")

	// User errors
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")

	// Token errors. Consumption does not distinguish unknown, used and expired tokens.
	ErrTokenNotFound = errors.New("token not found")
)
