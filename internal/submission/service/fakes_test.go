package service

import (
	"context"
	"errors"

	"github.com/blankon/submission-relay/internal/submission/model"
)

type fakeSource struct {
	artifacts map[string][]byte
	calls     []string
}

func (f *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	data, ok := f.artifacts[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

type putCall struct {
	bucket string
	key    string
	data   []byte
}

type fakeStore struct {
	err   error
	calls []putCall
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	f.calls = append(f.calls, putCall{bucket: bucket, key: key, data: data})
	return f.err
}

type sentEmail struct {
	recipient string
	subject   string
	body      string
}

type fakeNotifier struct {
	// failSubjects makes Send fail for the listed subjects
	failSubjects map[string]bool
	sent         []sentEmail
}

func (f *fakeNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	f.sent = append(f.sent, sentEmail{recipient: recipient, subject: subject, body: body})
	if f.failSubjects[subject] {
		return errors.New("mailgun: 401 unauthorized")
	}
	return nil
}

func (f *fakeNotifier) to(recipient string) []sentEmail {
	var emails []sentEmail
	for _, e := range f.sent {
		if e.recipient == recipient {
			emails = append(emails, e)
		}
	}
	return emails
}

type fakeAudit struct {
	err     error
	records []model.AuditRecord
}

func (f *fakeAudit) Append(ctx context.Context, record model.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}
