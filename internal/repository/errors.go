package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a uniqueness violation on insert.
var ErrDuplicate = errors.New("repository: duplicate")
