package services

import (
	"errors"
	"fmt"
)

// FailureKind categorizes a pipeline error so the runner can decide what
// to do with the item: skip it, suppress the database write, or abort.
type FailureKind string

const (
	ParseFailure     FailureKind = "parse"
	FetchFailure     FailureKind = "fetch"
	TranscodeFailure FailureKind = "transcode"
	StorageFailure   FailureKind = "storage"
	DatabaseFailure  FailureKind = "database"
)

// StageError tags an underlying error with the pipeline stage that produced it
type StageError struct {
	Kind FailureKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErrorf(kind FailureKind, format string, args ...interface{}) error {
	return &StageError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// FailureKindOf returns the stage that produced err. Errors raised
// outside a tagged stage count as fetch failures, the broadest bucket.
func FailureKindOf(err error) FailureKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FetchFailure
}
