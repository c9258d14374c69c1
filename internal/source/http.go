// Package source downloads submitted artifacts.
package source

import (
	"context"
	"net/http"
	"time"

	"github.com/blankon/submission-relay/pkg/httputil"
)

// HTTPSource fetches an artifact with a plain GET
type HTTPSource struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPSource returns a source with the given request timeout and body limit
func NewHTTPSource(timeout time.Duration, maxBytes int64) *HTTPSource {
	return &HTTPSource{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url as binary content
func (s *HTTPSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	return httputil.GetBytes(ctx, s.client, url, s.maxBytes)
}
