package ir

import (
	"errors"
	"fmt"
)

// StoreError represents a failed store operation.
//
// Every store variant reports failures through StoreError so callers can
// branch on Code regardless of the backend:
//   - NOT_FOUND: the record does not exist
//   - ALREADY_EXISTS: create with an identifier already present
//   - INVALID_PREDICATE: predicate names an unknown or unindexed field, or
//     carries a value of the wrong kind
//   - INVALID_FIELD_PROJECTION: projection names an unknown field
//   - INVALID_RECORD: record does not satisfy the schema
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID identifies the affected record, when there is one.
	ID ID

	// Field names the offending field, when there is one.
	Field string
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists          ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidPredicate       ErrorCode = "INVALID_PREDICATE"
	ErrCodeInvalidFieldProjection ErrorCode = "INVALID_FIELD_PROJECTION"
	ErrCodeInvalidRecord          ErrorCode = "INVALID_RECORD"
)

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.ID != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (id=%s, field=%s)", e.Code, e.Message, e.ID, e.Field)
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NotFound returns a NOT_FOUND error for id.
func NotFound(id ID) *StoreError {
	return &StoreError{Code: ErrCodeNotFound, Message: "record not found", ID: id}
}

// AlreadyExists returns an ALREADY_EXISTS error for id.
func AlreadyExists(id ID) *StoreError {
	return &StoreError{Code: ErrCodeAlreadyExists, Message: "record already exists", ID: id}
}

// InvalidPredicate returns an INVALID_PREDICATE error for field.
func InvalidPredicate(field, format string, args ...any) *StoreError {
	return &StoreError{Code: ErrCodeInvalidPredicate, Message: fmt.Sprintf(format, args...), Field: field}
}

// InvalidProjection returns an INVALID_FIELD_PROJECTION error for field.
func InvalidProjection(field string) *StoreError {
	return &StoreError{Code: ErrCodeInvalidFieldProjection, Message: "unknown field in projection", Field: field}
}

// InvalidRecord returns an INVALID_RECORD error for field.
func InvalidRecord(field, format string, args ...any) *StoreError {
	return &StoreError{Code: ErrCodeInvalidRecord, Message: fmt.Sprintf(format, args...), Field: field}
}

// WithID returns a copy of e tagged with id.
func (e *StoreError) WithID(id ID) *StoreError {
	out := *e
	out.ID = id
	return &out
}

// CodeOf returns the StoreError code carried by err, or "" if there is none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound returns true if the error is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsAlreadyExists returns true if the error is an ALREADY_EXISTS error.
func IsAlreadyExists(err error) bool { return CodeOf(err) == ErrCodeAlreadyExists }

// IsInvalidPredicate returns true if the error is an INVALID_PREDICATE error.
func IsInvalidPredicate(err error) bool { return CodeOf(err) == ErrCodeInvalidPredicate }

// IsInvalidFieldProjection returns true if the error is an INVALID_FIELD_PROJECTION error.
func IsInvalidFieldProjection(err error) bool { return CodeOf(err) == ErrCodeInvalidFieldProjection }

// IsInvalidRecord returns true if the error is an INVALID_RECORD error.
func IsInvalidRecord(err error) bool { return CodeOf(err) == ErrCodeInvalidRecord }
