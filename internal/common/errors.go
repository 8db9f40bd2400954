// Package common defines shared constants and sentinel errors used across
// the service and repository layers. Callers should use errors.Is / errors.As
// to match these values.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Rule errors.
	ErrRuleExists       = errors.New("a rule with this expected name already exists for the supplier")
	ErrRuleInvalid      = errors.New("invalid validation rule")
	ErrRuleImportFormat = errors.New("invalid rule import")

	// Activity / file lifecycle errors.
	ErrActivityEnded          = errors.New("activity already ended")
	ErrActivityNotInProgress  = errors.New("activity is not in progress")
	ErrFailedFilesPresent     = errors.New("resolve failed files before ending the activity")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrValidatedFileImmutable = errors.New("cannot delete a validated file, re-upload to replace it")
	ErrVersionConflict        = errors.New("version conflict")
	ErrInvalidFileName        = errors.New("invalid file name")
	ErrArchiveUnavailable     = errors.New("archive is only available for completed activities")
)

// MissingRequiredError is returned by the completion gate when required
// rules have no validated file.
type MissingRequiredError struct {
	Names []string
}

func (e *MissingRequiredError) Error() string {
	return "required files missing: " + strings.Join(e.Names, ", ")
}
