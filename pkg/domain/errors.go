package domain

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned when a document ID cannot be found.
var ErrDocumentNotFound = errors.New("document not found")

// ErrScheduleNotFound is returned when a scheduled execution ID is unknown.
var ErrScheduleNotFound = errors.New("scheduled execution not found")

// AuthoringError is a fatal document defect (malformed block, duplicate
// variable) surfaced before execution starts. It is never retried.
type AuthoringError struct {
	BlockID string
	Reason  string
}

func (e *AuthoringError) Error() string {
	if e.BlockID == "" {
		return fmt.Sprintf("authoring error: %s", e.Reason)
	}
	return fmt.Sprintf("authoring error in block %s: %s", e.BlockID, e.Reason)
}

// DuplicateVariableError is the authoring error for a STATE block redeclaring
// an existing variable name.
type DuplicateVariableError struct {
	Name string
}

func (e *DuplicateVariableError) Error() string {
	return fmt.Sprintf("variable %q is already declared", e.Name)
}

// TypeMismatchError reports a SET or FORM write whose value does not match
// the variable's established type. The variable is left unchanged.
type TypeMismatchError struct {
	Target string
	Want   Kind
	Got    Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch on %q: variable is %s, value is %s", e.Target, e.Want, e.Got)
}

// AssignmentTargetError reports a write through a wildcard path or to a
// system/database-owned variable. The offending mutation is skipped.
type AssignmentTargetError struct {
	Target string
	Reason string
}

func (e *AssignmentTargetError) Error() string {
	return fmt.Sprintf("invalid assignment target %q: %s", e.Target, e.Reason)
}

// FieldError is a single FORM field validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// ValidationError aggregates FORM field failures. The whole submission is
// rejected; no field is written.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return e.Fields[0].Error()
	}
	msg := fmt.Sprintf("%d field errors:", len(e.Fields))
	for _, f := range e.Fields {
		msg += "\n  " + f.Error()
	}
	return msg
}

// SchedulerPersistenceError reports a durable-store write failure for a WAIT.
// The caller must be told scheduling failed rather than silently dropping it.
type SchedulerPersistenceError struct {
	DocumentID string
	BlockID    string
	Err        error
}

func (e *SchedulerPersistenceError) Error() string {
	return fmt.Sprintf("failed to persist wait for document %s block %s: %v", e.DocumentID, e.BlockID, e.Err)
}

func (e *SchedulerPersistenceError) Unwrap() error {
	return e.Err
}
