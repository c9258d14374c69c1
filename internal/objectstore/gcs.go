package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore uploads artifacts to Google Cloud Storage
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a client authenticated with a service account key given as raw JSON
func NewGCSStore(ctx context.Context, serviceAccountKey string) (*GCSStore, error) {
	if serviceAccountKey == "" {
		return nil, errors.New("service account key is empty")
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(serviceAccountKey)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCSStore{client: client}, nil
}

// Put writes data to bucket/key, replacing any existing object
func (s *GCSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentTypeZip

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, key, err)
	}

	// the upload is only committed on Close
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, key, err)
	}

	return nil
}

// Close releases the client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
