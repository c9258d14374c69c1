package service

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/blankon/submission-relay/internal/submission/model"
)

// RecordOutcome is the final state of one record
type RecordOutcome struct {
	Index     int               `json:"index"`
	MessageID string            `json:"messageId,omitempty"`
	Email     string            `json:"email,omitempty"`
	State     model.RecordState `json:"state"`
	ObjectKey string            `json:"objectKey,omitempty"`
	AuditID   string            `json:"auditId,omitempty"`
	Err       error             `json:"-"`
}

// BatchResult summary of a processed batch
type BatchResult struct {
	Status   string          `json:"status"`
	Outcomes []RecordOutcome `json:"outcomes"`
}

// Succeeded returns the outcomes that reached the audited state
func (b BatchResult) Succeeded() []RecordOutcome {
	var outcomes []RecordOutcome
	for _, o := range b.Outcomes {
		if o.Err == nil && o.State.IsTerminal() && !o.State.IsFailure() {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

// Failed returns the outcomes that stopped on an error or in a failed state
func (b BatchResult) Failed() []RecordOutcome {
	var outcomes []RecordOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil || o.State.IsFailure() {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

// Err aggregates per-record errors, nil when every record succeeded
func (b BatchResult) Err() error {
	var result *multierror.Error
	for _, o := range b.Failed() {
		err := o.Err
		if err == nil {
			err = errors.New(string(o.State))
		}
		result = multierror.Append(result, fmt.Errorf("record %d: %w", o.Index, err))
	}
	return result.ErrorOrNil()
}
