package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/event"
	"github.com/sirupsen/logrus"
)

var (
	// ErrReadOnly is returned when a write targets a read only entity.
	ErrReadOnly = errors.New("entity is read only")
	// ErrMissingIdentifier is returned when an operation needs a stored object.
	ErrMissingIdentifier = errors.New("object has no identifier")
	// ErrNotVersioned is returned when a revision operation targets an entity without revision control.
	ErrNotVersioned = errors.New("entity is not under revision control")
	// ErrVersionNotFound is returned when a requested version does not exist.
	ErrVersionNotFound = errors.New("version not found")
	// ErrNothingToInsert is returned when a new object carries no values.
	ErrNothingToInsert = errors.New("nothing to insert")
	// ErrNoCipher is returned when an entity has encrypted fields but no cipher is configured.
	ErrNoCipher = errors.New("no cipher configured")
)

// UniqueConstraintError lists the fields whose values are already taken.
type UniqueConstraintError struct {
	Object string
	Fields map[string]any
}

func (e *UniqueConstraintError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: unique constraint violated on %s", e.Object, strings.Join(names, ", "))
}

// HookVetoError carries the message of a handler that vetoed an operation.
// Committed is set when the veto came from an after hook, the write itself
// is then already stored.
type HookVetoError struct {
	Event     event.Event
	Message   string
	Committed bool
}

func (e *HookVetoError) Error() string {
	return e.Message
}

// StorageError wraps a driver or connection failure.
type StorageError struct {
	Object string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Object, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EncryptionError is returned when a field value cannot be encrypted or decrypted.
type EncryptionError struct {
	Object string
	Field  string
	Err    error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("%s.%s: encryption failed: %v", e.Object, e.Field, e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// wrap turns untyped failures of op into a StorageError and logs them.
// Constraint, veto and configuration errors pass through unchanged.
func wrap(object, op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		veto    *HookVetoError
		unique  *UniqueConstraintError
		storage *StorageError
		enc     *EncryptionError
	)
	switch {
	case errors.As(err, &veto), errors.As(err, &unique), errors.As(err, &storage), errors.As(err, &enc):
		return err
	case errors.Is(err, entity.ErrConfiguration), errors.Is(err, entity.ErrUnknownField), errors.Is(err, entity.ErrInvalidValue):
		return err
	case errors.Is(err, ErrVersionNotFound):
		return err
	}

	logrus.WithFields(logrus.Fields{
		"object": object,
		"op":     op,
	}).Errorf("storage failure: %v", err)

	return &StorageError{Object: object, Op: op, Err: err}
}
