package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blankon/submission-relay/internal/monitoring"
	"github.com/blankon/submission-relay/internal/submission/model"
	"github.com/blankon/submission-relay/internal/submission/service"
)

type processorFunc func(ctx context.Context, payload []byte) (service.BatchResult, error)

func (f processorFunc) ProcessEvent(ctx context.Context, payload []byte) (service.BatchResult, error) {
	return f(ctx, payload)
}

func TestRelay_ReportsOutcomes(t *testing.T) {
	var received string
	processor := processorFunc(func(ctx context.Context, payload []byte) (service.BatchResult, error) {
		received = string(payload)
		return service.BatchResult{
			Status: service.BatchStatusSuccess,
			Outcomes: []service.RecordOutcome{
				{Index: 0, Email: "a@b.com", State: model.StateAudited, ObjectKey: "a@b.com-submission-x.zip"},
				{Index: 1, Email: "c@d.com", State: model.StateFetchFailed, Err: errors.New("boom")},
			},
		}, nil
	})
	counters := &monitoring.Counters{}

	out, err := NewTaskEndpoint(processor, counters, "").Relay(`{"Records":[]}`)
	require.NoError(t, err)
	assert.Equal(t, `{"Records":[]}`, received)

	var response TaskResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, service.BatchStatusSuccess, response.Status)
	assert.Equal(t, 1, response.Succeeded)
	assert.Equal(t, 1, response.Failed)
	require.Len(t, response.Outcomes, 2)
	assert.Equal(t, model.StateFetchFailed, response.Outcomes[1].State)

	batches, succeeded, failed := counters.Snapshot()
	assert.Equal(t, int64(1), batches)
	assert.Equal(t, int64(1), succeeded)
	assert.Equal(t, int64(1), failed)
}

func TestRelay_MalformedEnvelope(t *testing.T) {
	processor := processorFunc(func(ctx context.Context, payload []byte) (service.BatchResult, error) {
		return service.BatchResult{}, errors.New("decode event")
	})
	counters := &monitoring.Counters{}

	_, err := NewTaskEndpoint(processor, counters, "").Relay("not json")
	assert.EqualError(t, err, "decode event")

	batches, _, _ := counters.Snapshot()
	assert.Zero(t, batches)
}

func TestProcess_NilProcessor(t *testing.T) {
	_, err := NewTaskEndpoint(nil, nil, "").Process(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewRelaySignature(t *testing.T) {
	signature := NewRelaySignature(`{"Records":[]}`)

	assert.Equal(t, TaskName, signature.Name)
	require.Len(t, signature.Args, 1)
	assert.Equal(t, "string", signature.Args[0].Type)
	assert.Equal(t, `{"Records":[]}`, signature.Args[0].Value)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "a@b.com", outcomeLabel(service.RecordOutcome{Email: "a@b.com", MessageID: "m"}))
	assert.Equal(t, "m", outcomeLabel(service.RecordOutcome{MessageID: "m"}))
	assert.Equal(t, "record 3", outcomeLabel(service.RecordOutcome{Index: 3}))
}
