package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedInput marks request bodies that are not parseable JSON.
	ErrMalformedInput = errors.New("invalid JSON in request body")
	// ErrUnauthorized marks a password that does not match the stored hash.
	ErrUnauthorized = errors.New("invalid credentials")
)

// NotFoundError is returned when a keyed lookup misses.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity.Label())
}

// ConflictError is returned when a create would duplicate an existing key.
type ConflictError struct {
	Entity EntityType
	ID     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with ID '%s' already exists", e.Entity.Label(), e.ID)
}

// ValidationError lists the structural problems found in a payload.
type ValidationError struct {
	Entity  EntityType
	Reasons []string
}

func (e ValidationError) Error() string {
	label := "payload"
	if e.Entity != "" {
		label = strings.ToLower(e.Entity.Label())
	}
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("Invalid %s format", label)
	}
	return fmt.Sprintf("Invalid %s format: %s", label, strings.Join(e.Reasons, "; "))
}

// IntegrityError reports a cross-collection reference problem.
type IntegrityError struct {
	Message string
}

func (e IntegrityError) Error() string { return e.Message }

// PersistenceError wraps a failed durable write or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }
