package service

import (
	"errors"
	"fmt"
)

var (
	ErrParse       = errors.New("malformed submission message")
	ErrNetwork     = errors.New("artifact download failed")
	ErrStorage     = errors.New("artifact upload failed")
	ErrDelivery    = errors.New("email delivery failed")
	ErrPersistence = errors.New("audit write failed")
)

// StageError ties a collaborator error to the pipeline stage that raised it.
// errors.Is matches both the kind and the wrapped cause.
type StageError struct {
	Kind  error
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return target == e.Kind
}

func stageError(kind error, stage string, err error) error {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}
