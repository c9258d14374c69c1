package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/rs/zerolog/log"

	"github.com/blankon/submission-relay/internal/monitoring"
	"github.com/blankon/submission-relay/internal/notification"
	"github.com/blankon/submission-relay/internal/submission/service"
)

// TaskName is the machinery task consuming submission events
const TaskName = "relay"

// BatchProcessor processes one raw event
type BatchProcessor interface {
	ProcessEvent(ctx context.Context, payload []byte) (service.BatchResult, error)
}

// TaskEndpoint machinery endpoint for submission events
type TaskEndpoint struct {
	processor  BatchProcessor
	counters   *monitoring.Counters
	webhookURL string
}

// NewTaskEndpoint returns new task endpoint instance
func NewTaskEndpoint(processor BatchProcessor, counters *monitoring.Counters, webhookURL string) *TaskEndpoint {
	if counters == nil {
		counters = &monitoring.Counters{}
	}
	return &TaskEndpoint{
		processor:  processor,
		counters:   counters,
		webhookURL: webhookURL,
	}
}

// TaskResponse is the task result stored in the machinery backend
type TaskResponse struct {
	Status    string                  `json:"status"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Outcomes  []service.RecordOutcome `json:"outcomes"`
}

// Relay handles one queued event. Only a malformed envelope fails the task,
// per-record errors are part of the response.
func (e *TaskEndpoint) Relay(payload string) (string, error) {
	ctx := context.Background()

	result, err := e.Process(ctx, []byte(payload))
	if err != nil {
		return "", err
	}

	response, err := json.Marshal(toTaskResponse(result))
	if err != nil {
		return "", fmt.Errorf("encode task response: %w", err)
	}
	return string(response), nil
}

// Process runs the relay and reports the batch to counters and the operator webhook
func (e *TaskEndpoint) Process(ctx context.Context, payload []byte) (service.BatchResult, error) {
	if e.processor == nil {
		return service.BatchResult{}, errors.New("processor is nil")
	}

	result, err := e.processor.ProcessEvent(ctx, payload)
	if err != nil {
		return result, err
	}

	succeeded, failed := result.Succeeded(), result.Failed()
	e.counters.RecordBatch(len(succeeded), len(failed))

	summary := notification.BatchSummary{
		Records:   len(result.Outcomes),
		Succeeded: len(succeeded),
	}
	for _, outcome := range failed {
		summary.Failed = append(summary.Failed, fmt.Sprintf("%s: %s", outcomeLabel(outcome), outcome.State))
	}
	notification.SendBatchSummary(ctx, e.webhookURL, summary)

	if batchErr := result.Err(); batchErr != nil {
		log.Warn().Err(batchErr).Msg("Batch finished with failed records")
	}

	return result, nil
}

// NewRelaySignature builds the task carrying a raw event
func NewRelaySignature(payload string) *tasks.Signature {
	return &tasks.Signature{
		Name: TaskName,
		Args: []tasks.Arg{
			{
				Type:  "string",
				Value: payload,
			},
		},
	}
}

func toTaskResponse(result service.BatchResult) TaskResponse {
	return TaskResponse{
		Status:    result.Status,
		Succeeded: len(result.Succeeded()),
		Failed:    len(result.Failed()),
		Outcomes:  result.Outcomes,
	}
}

func outcomeLabel(outcome service.RecordOutcome) string {
	if outcome.Email != "" {
		return outcome.Email
	}
	if outcome.MessageID != "" {
		return outcome.MessageID
	}
	return fmt.Sprintf("record %d", outcome.Index)
}
