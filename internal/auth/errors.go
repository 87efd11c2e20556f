package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown username and wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned for deactivated accounts regardless of
	// whether the submitted password was correct.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrInvalidInput indicates an empty username/password or an
	// unrecognized role.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLastAdmin is returned when an operation would leave the store
	// without any active admin account.
	ErrLastAdmin = errors.New("cannot remove the last active admin")
)

// AccountLockedError is returned while a lockout is in effect. Remaining is
// the time until the lockout expires; only privileged callers should relay
// it to end users.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for another %s", e.Remaining)
}
