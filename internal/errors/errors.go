package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the broker's state stores
var (
	// Store errors
	ErrNotFound      = errors.New("not found")
	ErrExpired       = errors.New("expired")
	ErrAlreadyExists = errors.New("already exists")
	ErrEmptyKey      = errors.New("key cannot be empty")

	// Client errors
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidClientSecret = errors.New("invalid client secret")
	ErrInvalidRedirectURI  = errors.New("invalid redirect URI")

	// Session errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New("session has been closed")
	ErrPersistenceDisabled = errors.New("persistence is not configured")
	ErrInvalidDatabaseID   = errors.New("invalid database id")

	// General errors
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
