package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/blankon/submission-relay/internal/submission/model"
)

const (
	subjectFetchFailed = "Your submission has failed."
	bodyFetchFailed    = "Please review your assignment submission. Submission download was unsuccessful."

	subjectStored = "Assignment Submitted Successfully!!"
	bodyStored    = "Your submission was successfully downloaded and submitted. \n\nGCS Object Path: %s"

	subjectComplete = "Assignment Submission Complete!!"
	bodyComplete    = "Your Assignment has been successfully downloaded and submitted."

	// BatchStatusSuccess is reported once the loop completes, whatever the per-record outcomes
	BatchStatusSuccess = "Success"
)

// Dependencies are the collaborators of the relay, built once per process
type Dependencies struct {
	Source   ArtifactSource
	Store    ObjectStore
	Notifier Notifier
	Audit    AuditLog
}

// Options tune the relay without changing collaborators
type Options struct {
	Bucket        string
	DisplayPrefix string

	// ConsolidateNotifications drops the completion email, leaving the
	// upload confirmation as the only success message.
	ConsolidateNotifications bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Relay drives the fetch, persist, notify and audit pipeline for each record
type Relay struct {
	deps     Dependencies
	opts     Options
	validate *validator.Validate
}

// NewRelay returns relay instance
func NewRelay(deps Dependencies, opts Options) (*Relay, error) {
	if deps.Source == nil {
		return nil, errors.New("artifact source is nil")
	}
	if deps.Store == nil {
		return nil, errors.New("object store is nil")
	}
	if deps.Notifier == nil {
		return nil, errors.New("notifier is nil")
	}
	if deps.Audit == nil {
		return nil, errors.New("audit log is nil")
	}
	if opts.Bucket == "" {
		return nil, errors.New("bucket is empty")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Relay{
		deps:     deps,
		opts:     opts,
		validate: validator.New(),
	}, nil
}

// ProcessEvent decodes the batch envelope and processes its records. Only a
// malformed envelope is reported as an error.
func (r *Relay) ProcessEvent(ctx context.Context, payload []byte) (BatchResult, error) {
	var event model.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		r.opts.Logger.Error().Err(err).Msg("Can't decode event")
		return BatchResult{}, fmt.Errorf("decode event: %w", err)
	}

	if len(event.Records) == 0 {
		r.opts.Logger.Info().Msg("Event has no records")
	}

	return r.ProcessBatch(ctx, event.Records), nil
}

// ProcessBatch runs every record through the pipeline sequentially. A failing
// record never stops the loop; its error is kept in the outcome.
func (r *Relay) ProcessBatch(ctx context.Context, records []model.EventRecord) BatchResult {
	result := BatchResult{
		Status:   BatchStatusSuccess,
		Outcomes: make([]RecordOutcome, 0, len(records)),
	}

	for i, record := range records {
		outcome := r.processRecord(ctx, i, record)
		if outcome.Err != nil {
			r.opts.Logger.Error().
				Err(outcome.Err).
				Int("record", i).
				Str("email", outcome.Email).
				Str("state", string(outcome.State)).
				Msg("Error in processing record")
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	r.opts.Logger.Info().
		Int("records", len(records)).
		Int("failed", len(result.Failed())).
		Msg("All operations completed")

	return result
}

func (r *Relay) processRecord(ctx context.Context, index int, record model.EventRecord) (outcome RecordOutcome) {
	outcome = RecordOutcome{
		Index:     index,
		MessageID: record.Sns.MessageID,
		State:     model.StateReceived,
	}

	request, err := r.parse(record.Sns.Message)
	if err != nil {
		outcome.State = model.StateParseFailed
		outcome.Err = err
		return
	}
	outcome.Email = request.UserEmail

	logger := r.opts.Logger.With().Int("record", index).Str("email", request.UserEmail).Logger()

	logger.Info().Str("url", request.GithubRepo).Msg("Starting download")
	outcome.State = model.StateFetching
	artifact, err := r.fetch(ctx, request)
	if err != nil {
		outcome.State = model.StateFetchFailed
		outcome.Err = err
		return
	}
	outcome.State = model.StateFetched
	logger.Info().Int("bytes", len(artifact)).Msg("Download completed")

	outcome.State = model.StatePersisting
	key, err := r.persist(ctx, request.UserEmail, artifact)
	outcome.ObjectKey = key
	if err != nil {
		if errors.Is(err, ErrDelivery) {
			outcome.State = model.StateNotifyFailed
		} else {
			outcome.State = model.StatePersistFailed
		}
		outcome.Err = err
		return
	}
	outcome.State = model.StatePersisted
	logger.Info().Str("key", key).Msg("Stored artifact")

	outcome.State = model.StateNotifying
	if !r.opts.ConsolidateNotifications {
		err = r.deps.Notifier.Send(ctx, request.UserEmail, subjectComplete, bodyComplete)
		if err != nil {
			outcome.State = model.StateNotifyFailed
			outcome.Err = stageError(ErrDelivery, "notify", err)
			return
		}
	}
	outcome.State = model.StateNotified

	outcome.State = model.StateAuditing
	auditID, err := r.audit(ctx, request.UserEmail)
	if err != nil {
		outcome.State = model.StateAuditFailed
		outcome.Err = err
		return
	}
	outcome.AuditID = auditID
	outcome.State = model.StateAudited
	logger.Info().Str("audit_id", auditID).Msg("Recorded submission")

	return
}

func (r *Relay) parse(message string) (request model.SubmissionRequest, err error) {
	if err = json.Unmarshal([]byte(message), &request); err != nil {
		return request, stageError(ErrParse, "parse", err)
	}
	if err = r.validate.Struct(request); err != nil {
		return request, stageError(ErrParse, "parse", err)
	}
	return
}

// fetch is the only stage that tells the user about its own failure
func (r *Relay) fetch(ctx context.Context, request model.SubmissionRequest) ([]byte, error) {
	artifact, err := r.deps.Source.Fetch(ctx, request.GithubRepo)
	if err == nil {
		return artifact, nil
	}

	if sendErr := r.deps.Notifier.Send(ctx, request.UserEmail, subjectFetchFailed, bodyFetchFailed); sendErr != nil {
		r.opts.Logger.Error().Err(sendErr).Str("email", request.UserEmail).Msg("Error sending failure email")
	}

	return nil, stageError(ErrNetwork, "fetch", err)
}

func (r *Relay) persist(ctx context.Context, email string, artifact []byte) (string, error) {
	key := ObjectKey(email, r.opts.Now())

	if err := r.deps.Store.Put(ctx, r.opts.Bucket, key, artifact); err != nil {
		return "", stageError(ErrStorage, "persist", err)
	}

	body := fmt.Sprintf(bodyStored, ObjectPath(r.opts.DisplayPrefix, r.opts.Bucket, key))
	if err := r.deps.Notifier.Send(ctx, email, subjectStored, body); err != nil {
		return key, stageError(ErrDelivery, "persist", err)
	}

	return key, nil
}

func (r *Relay) audit(ctx context.Context, email string) (string, error) {
	now := r.opts.Now()
	record := model.AuditRecord{
		ID:        GenerateAuditID(now),
		Email:     email,
		Status:    model.AuditStatusSuccess,
		Timestamp: now.UTC(),
	}

	if err := r.deps.Audit.Append(ctx, record); err != nil {
		return "", stageError(ErrPersistence, "audit", err)
	}
	return record.ID, nil
}
