package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// isoLayout mirrors the ISO-8601 form with millisecond precision in UTC
const isoLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC ISO-8601 with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ObjectKey derives the destination key of an artifact. Two submissions of
// the same email within the same millisecond get the same key.
func ObjectKey(email string, t time.Time) string {
	timestamp := strings.ReplaceAll(FormatTimestamp(t), ":", "-")
	return email + "-submission-" + timestamp + ".zip"
}

// ObjectPath is the human readable location put in the confirmation email.
// It is informative only and not a resolvable URL.
func ObjectPath(prefix, bucket, key string) string {
	return prefix + "/" + bucket + "/" + key
}

// GenerateAuditID returns a unique audit record id, prefixed by time for sorting
func GenerateAuditID(timestamp time.Time) string {
	return timestamp.UTC().Format("2006-01-02-150405") + "_" + uuid.New().String()
}
