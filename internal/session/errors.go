package session

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/cinelog/service-core-go/internal/user"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = user.ErrInvalidCredentials

	// ErrInvalidRefreshToken covers unknown, revoked and expired refresh tokens
	// as well as tokens whose session is no longer active.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidAccessToken is returned when an access token fails verification
	// or its session is no longer active.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrSessionNotFound is returned when a session does not exist or is not
	// owned by the caller.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenIssue is returned when signing an access token or generating a
	// refresh token fails.
	ErrTokenIssue = errors.New("token issue failed")

	// ErrPersistence matches every PersistenceError.
	ErrPersistence = errors.New("persistence failure")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	errDuplicateKey   = errors.New("duplicate key")
	errMissingSession = errors.New("refresh token references unknown session")
)

// PersistenceError wraps a storage-layer failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence.Error(), e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistence(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
