package model

// RecordState is a step of the per-record pipeline
type RecordState string

const (
	StateReceived   RecordState = "RECEIVED"
	StateFetching   RecordState = "FETCHING"
	StateFetched    RecordState = "FETCHED"
	StatePersisting RecordState = "PERSISTING"
	StatePersisted  RecordState = "PERSISTED"
	StateNotifying  RecordState = "NOTIFYING"
	StateNotified   RecordState = "NOTIFIED"
	StateAuditing   RecordState = "AUDITING"
	StateAudited    RecordState = "AUDITED"

	StateParseFailed   RecordState = "PARSE_FAILED"
	StateFetchFailed   RecordState = "FETCH_FAILED"
	StatePersistFailed RecordState = "PERSIST_FAILED"
	StateNotifyFailed  RecordState = "NOTIFY_FAILED"
	StateAuditFailed   RecordState = "AUDIT_FAILED"
)

// IsTerminal returns true if no further transition can happen from the state.
func (s RecordState) IsTerminal() bool {
	switch s {
	case StateAudited, StateParseFailed, StateFetchFailed, StatePersistFailed, StateNotifyFailed, StateAuditFailed:
		return true
	}
	return false
}

// IsFailure returns true for the failed terminal states
func (s RecordState) IsFailure() bool {
	return s.IsTerminal() && s != StateAudited
}
