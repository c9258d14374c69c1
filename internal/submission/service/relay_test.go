package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blankon/submission-relay/internal/submission/model"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 123000000, time.UTC)

type relayFixture struct {
	source   *fakeSource
	store    *fakeStore
	notifier *fakeNotifier
	audit    *fakeAudit
	relay    *Relay
}

func newFixture(t *testing.T, consolidate bool) *relayFixture {
	f := &relayFixture{
		source: &fakeSource{artifacts: map[string][]byte{
			"https://example/artifact": {0x50, 0x4B, 0x03, 0x04},
		}},
		store:    &fakeStore{},
		notifier: &fakeNotifier{failSubjects: map[string]bool{}},
		audit:    &fakeAudit{},
	}

	relay, err := NewRelay(
		Dependencies{Source: f.source, Store: f.store, Notifier: f.notifier, Audit: f.audit},
		Options{
			Bucket:                   "submissions",
			DisplayPrefix:            "storage-cloud-google-com",
			ConsolidateNotifications: consolidate,
			Logger:                   zerolog.Nop(),
			Now:                      func() time.Time { return fixedNow },
		},
	)
	require.NoError(t, err)
	f.relay = relay
	return f
}

func record(t *testing.T, email, repo, tag string) model.EventRecord {
	msg, err := json.Marshal(model.SubmissionRequest{UserEmail: email, GithubRepo: repo, ReleaseTag: tag})
	require.NoError(t, err)
	return model.EventRecord{Sns: model.Notification{Message: string(msg)}}
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(Dependencies{}, Options{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewRelay(Dependencies{
		Source:   &fakeSource{},
		Store:    &fakeStore{},
		Notifier: &fakeNotifier{},
		Audit:    &fakeAudit{},
	}, Options{})
	assert.EqualError(t, err, "bucket is empty")
}

func TestProcessBatchSuccess(t *testing.T) {
	f := newFixture(t, false)

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	assert.Equal(t, BatchStatusSuccess, result.Status)
	require.Len(t, result.Outcomes, 1)
	outcome := result.Outcomes[0]
	assert.NoError(t, outcome.Err)
	assert.Equal(t, model.StateAudited, outcome.State)
	assert.NoError(t, result.Err())

	require.Len(t, f.store.calls, 1)
	put := f.store.calls[0]
	assert.Equal(t, "submissions", put.bucket)
	assert.Equal(t, []byte{0x50, 0x4B, 0x03, 0x04}, put.data)
	assert.Regexp(t, regexp.MustCompile(`^a@b\.com-submission-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.\d{3}Z\.zip$`), put.key)
	assert.Equal(t, "a@b.com-submission-2024-03-05T14-07-09.123Z.zip", put.key)
	assert.Equal(t, put.key, outcome.ObjectKey)

	emails := f.notifier.to("a@b.com")
	require.Len(t, emails, 2)
	assert.Equal(t, subjectStored, emails[0].subject)
	assert.Contains(t, emails[0].body, "GCS Object Path: storage-cloud-google-com/submissions/"+put.key)
	assert.Equal(t, subjectComplete, emails[1].subject)

	require.Len(t, f.audit.records, 1)
	audit := f.audit.records[0]
	assert.Equal(t, model.AuditStatusSuccess, audit.Status)
	assert.Equal(t, "a@b.com", audit.Email)
	assert.Equal(t, fixedNow, audit.Timestamp)
	assert.Equal(t, audit.ID, outcome.AuditID)
}

func TestProcessBatchConsolidatedNotifications(t *testing.T) {
	f := newFixture(t, true)

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	require.Len(t, result.Succeeded(), 1)
	emails := f.notifier.to("a@b.com")
	require.Len(t, emails, 1)
	assert.Equal(t, subjectStored, emails[0].subject)
	assert.Len(t, f.audit.records, 1)
}

func TestProcessBatchEmpty(t *testing.T) {
	f := newFixture(t, false)

	result := f.relay.ProcessBatch(context.Background(), nil)

	assert.Equal(t, BatchStatusSuccess, result.Status)
	assert.Empty(t, result.Outcomes)
	assert.Empty(t, f.source.calls)
	assert.Empty(t, f.store.calls)
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.audit.records)
	assert.NoError(t, result.Err())
}

func TestProcessBatchFetchFailure(t *testing.T) {
	f := newFixture(t, false)

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "x@y.com", "https://example/missing", "v2"),
	})

	require.Len(t, result.Outcomes, 1)
	outcome := result.Outcomes[0]
	assert.Equal(t, model.StateFetchFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrNetwork))

	emails := f.notifier.to("x@y.com")
	require.Len(t, emails, 1)
	assert.Equal(t, subjectFetchFailed, emails[0].subject)
	assert.Empty(t, f.store.calls)
	assert.Empty(t, f.audit.records)
}

func TestProcessBatchFetchFailureEmailAlsoFails(t *testing.T) {
	f := newFixture(t, false)
	f.notifier.failSubjects[subjectFetchFailed] = true

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "x@y.com", "https://example/missing", "v2"),
	})

	outcome := result.Outcomes[0]
	assert.Equal(t, model.StateFetchFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrNetwork))
	assert.Len(t, f.notifier.sent, 1)
}

func TestProcessBatchStorageFailure(t *testing.T) {
	f := newFixture(t, false)
	f.store.err = errors.New("bucket not found")

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	outcome := result.Outcomes[0]
	assert.Equal(t, model.StatePersistFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrStorage))

	var stageErr *StageError
	require.True(t, errors.As(outcome.Err, &stageErr))
	assert.Equal(t, "persist", stageErr.Stage)

	// no user notification past the fetch stage
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.audit.records)
}

func TestProcessBatchStoredEmailFailure(t *testing.T) {
	f := newFixture(t, false)
	f.notifier.failSubjects[subjectStored] = true

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	outcome := result.Outcomes[0]
	assert.Equal(t, model.StateNotifyFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrDelivery))
	assert.Len(t, f.store.calls, 1)
	assert.Len(t, f.notifier.sent, 1)
	assert.Empty(t, f.audit.records)
}

func TestProcessBatchCompleteEmailFailure(t *testing.T) {
	f := newFixture(t, false)
	f.notifier.failSubjects[subjectComplete] = true

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	outcome := result.Outcomes[0]
	assert.Equal(t, model.StateNotifyFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrDelivery))
	assert.Empty(t, f.audit.records)
}

func TestProcessBatchAuditFailure(t *testing.T) {
	f := newFixture(t, false)
	f.audit.err = errors.New("database is locked")

	result := f.relay.ProcessBatch(context.Background(), []model.EventRecord{
		record(t, "a@b.com", "https://example/artifact", "v1"),
	})

	outcome := result.Outcomes[0]
	assert.Equal(t, model.StateAuditFailed, outcome.State)
	assert.True(t, errors.Is(outcome.Err, ErrPersistence))
	assert.Contains(t, outcome.Err.Error(), "database is locked")
	// both success emails already went out
	assert.Len(t, f.notifier.to("a@b.com"), 2)
}

func TestProcessBatchParseFailures(t *testing.T) {
	f := newFixture(t, false)

	records := []model.EventRecord{
		{Sns: model.Notification{MessageID: "m-1", Message: "{not json"}},
		{Sns: model.Notification{MessageID: "m-2", Message: `{"userEmail":"a@b.com","githubRepo":"https://example/artifact"}`}},
	}
	result := f.relay.ProcessBatch(context.Background(), records)

	require.Len(t, result.Outcomes, 2)
	for i, outcome := range result.Outcomes {
		assert.Equal(t, model.StateParseFailed, outcome.State)
		assert.True(t, errors.Is(outcome.Err, ErrParse))
		assert.Equal(t, records[i].Sns.MessageID, outcome.MessageID)
	}
	assert.Empty(t, f.source.calls)
	assert.Empty(t, f.notifier.sent)
}

func TestProcessBatchFailureIsolation(t *testing.T) {
	f := newFixture(t, false)

	records := []model.EventRecord{
		record(t, "fail1@b.com", "https://example/missing-1", "v1"),
		{Sns: model.Notification{Message: "garbage"}},
		record(t, "ok@b.com", "https://example/artifact", "v1"),
		record(t, "fail2@b.com", "https://example/missing-2", "v1"),
	}
	result := f.relay.ProcessBatch(context.Background(), records)

	assert.Equal(t, BatchStatusSuccess, result.Status)
	require.Len(t, result.Outcomes, 4)
	assert.Len(t, result.Failed(), 3)
	require.Len(t, result.Succeeded(), 1)
	assert.Equal(t, "ok@b.com", result.Succeeded()[0].Email)
	assert.Equal(t, 2, result.Succeeded()[0].Index)

	// records are processed in order
	assert.Equal(t, []string{
		"https://example/missing-1",
		"https://example/artifact",
		"https://example/missing-2",
	}, f.source.calls)

	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "ok@b.com", f.audit.records[0].Email)

	err := result.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, ErrParse))
}

func TestProcessEvent(t *testing.T) {
	f := newFixture(t, false)

	msg := `{"userEmail":"a@b.com","githubRepo":"https://example/artifact","releaseTag":"v1"}`
	event, err := json.Marshal(model.Event{Records: []model.EventRecord{
		{Sns: model.Notification{MessageID: "abc", Message: msg}},
	}})
	require.NoError(t, err)

	result, err := f.relay.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, result.Succeeded(), 1)
	assert.Equal(t, "abc", result.Outcomes[0].MessageID)
}

func TestProcessEventMalformedEnvelope(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.relay.ProcessEvent(context.Background(), []byte(`{"Records": "nope"`))
	assert.Error(t, err)
	assert.Empty(t, f.source.calls)
}

func TestProcessEventWithoutRecords(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.relay.ProcessEvent(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, BatchStatusSuccess, result.Status)
	assert.Empty(t, result.Outcomes)
}

func TestEmailTexts(t *testing.T) {
	assert.Equal(t, "Your submission has failed.", subjectFetchFailed)
	assert.Equal(t, "Please review your assignment submission. Submission download was unsuccessful.", bodyFetchFailed)
	assert.Equal(t, "Assignment Submitted Successfully!!", subjectStored)
	assert.Equal(t, "Your submission was successfully downloaded and submitted. \n\nGCS Object Path: %s", bodyStored)
	assert.Equal(t, "Assignment Submission Complete!!", subjectComplete)
	assert.Equal(t, "Your Assignment has been successfully downloaded and submitted.", bodyComplete)
}
