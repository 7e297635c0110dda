package cluster

import "errors"

var (
	// ErrNotFound is returned when the addressed resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when a create collides with an
	// existing resource of the same name.
	ErrAlreadyExists = errors.New("resource already exists")
)
