package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyBatch   = errors.New("batch contains no records")
	ErrMissingID    = errors.New("record identifier is missing")
	ErrDuplicateID  = errors.New("record identifier is duplicated")
	ErrLookupMiss   = errors.New("reference table lookup miss")
	ErrScoring      = errors.New("record scoring failed")
	ErrMissingField = errors.New("required input is missing")
)

// ValidationError is a batch-fatal problem detected before any scoring starts
type ValidationError struct {
	Reason       error
	DuplicateIDs []string
	MissingRows  []int // zero-based positions of records without an identifier
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("batch validation failed: ")
	b.WriteString(strings.ReplaceAll(e.Reason.Error(), "\n", "; "))
	if len(e.DuplicateIDs) > 0 {
		fmt.Fprintf(&b, " (duplicate ids: %s)", strings.Join(e.DuplicateIDs, ", "))
	}
	if len(e.MissingRows) > 0 {
		fmt.Fprintf(&b, " (rows without id: %v)", e.MissingRows)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// LookupError is a non-fatal reference table miss. The affected category contributes zero.
type LookupError struct {
	Table string
	Code  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: code %q not found", e.Table, e.Code)
}

func (e *LookupError) Unwrap() error {
	return ErrLookupMiss
}

// RecordScoringError isolates a failure to a single record of the batch
type RecordScoringError struct {
	RecordID string
	Index    int
	Err      error
}

func (e *RecordScoringError) Error() string {
	return fmt.Sprintf("record %q (row %d): %v", e.RecordID, e.Index, e.Err)
}

func (e *RecordScoringError) Unwrap() []error {
	return []error{ErrScoring, e.Err}
}
