package store

import "errors"

// ErrNotFound is returned when a requested user does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating a user whose username is taken.
var ErrDuplicate = errors.New("username already exists")
