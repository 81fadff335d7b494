package base

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ===================================================================
// CUSTOM ERROR TYPES
// ===================================================================

// RepositoryError represents base repository error
type RepositoryError struct {
	Operation string
	Table     string
	Message   string
	Cause     error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to %s %s: %s (caused by: %v)", e.Operation, e.Table, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Table, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// EntityNotFoundError represents entity not found error
type EntityNotFoundError struct {
	Table      string
	Identifier string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with %s not found", e.Table, e.Identifier)
}

// ===================================================================
// ERROR HANDLING HELPERS
// ===================================================================

// HandleDBError handles database errors with consistent error wrapping
func HandleDBError(operation, table, identifier string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &EntityNotFoundError{Table: table, Identifier: identifier}
	}
	return &RepositoryError{Operation: operation, Table: table, Message: "database operation failed", Cause: err}
}

// IsEntityNotFound checks if error is an entity not found error
func IsEntityNotFound(err error) bool {
	var entityNotFoundError *EntityNotFoundError
	return errors.As(err, &entityNotFoundError)
}
