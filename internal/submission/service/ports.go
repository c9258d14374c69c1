package service

import (
	"context"

	"github.com/blankon/submission-relay/internal/submission/model"
)

// ArtifactSource downloads the submitted artifact
type ArtifactSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ObjectStore persists artifacts in a bucket
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// Notifier delivers a plain text message to a recipient
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// AuditLog appends processing outcomes
type AuditLog interface {
	Append(ctx context.Context, record model.AuditRecord) error
}
