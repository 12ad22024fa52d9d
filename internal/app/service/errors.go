package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// ValidationError rejects a request before the store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a direct-id lookup that missed the store.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError reports an aggregate that changed between lookup and lock.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s conflict: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// storeError maps gorm.ErrRecordNotFound to NotFoundError and wraps everything else.
func storeError(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

func positiveQuantity(field string, quantity int) error {
	if quantity <= 0 {
		return &ValidationError{Field: field, Reason: "must be greater than zero"}
	}
	return nil
}
