package model

import "time"

// Event is the inbound batch envelope delivered by the queue.
type Event struct {
	Records []EventRecord `json:"Records"`
}

// EventRecord wraps one serialized submission message
type EventRecord struct {
	Sns Notification `json:"Sns"`
}

// Notification carries the raw message body of a record
type Notification struct {
	MessageID string `json:"MessageId,omitempty"`
	Message   string `json:"Message"`
}

// SubmissionRequest represent one submission to relay
type SubmissionRequest struct {
	UserEmail  string `json:"userEmail" validate:"required"`
	GithubRepo string `json:"githubRepo" validate:"required"`
	ReleaseTag string `json:"releaseTag" validate:"required"`
}

// AuditStatusSuccess is the only status ever written, failed records leave no trace
const AuditStatusSuccess = "success"

// AuditRecord represent one append-only audit entry
type AuditRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
