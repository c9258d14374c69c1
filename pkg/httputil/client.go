package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
)

// ErrBodyTooLarge is returned when a response exceeds the read limit
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// HTTPStatusError represents a non-2xx HTTP response.
type HTTPStatusError struct {
	StatusCode int
}

func (err HTTPStatusError) Error() string {
	return fmt.Sprintf("non-success status: %d", err.StatusCode)
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// GetBytes issues a GET and returns the whole body. Non-2xx statuses are
// reported as HTTPStatusError. maxBytes <= 0 disables the limit.
func GetBytes(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	if client == nil {
		client = &http.Client{}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if !isSuccess(response.StatusCode) {
		return nil, HTTPStatusError{StatusCode: response.StatusCode}
	}

	var reader io.Reader = response.Body
	if maxBytes > 0 {
		reader = io.LimitReader(response.Body, maxBytes+1)
	}

	body, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, ErrBodyTooLarge
	}

	return body, nil
}

// PostJSON sends a JSON POST request, one attempt only.
func PostJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	if client == nil {
		client = &http.Client{}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	response.Body.Close()

	if !isSuccess(response.StatusCode) {
		return HTTPStatusError{StatusCode: response.StatusCode}
	}
	return nil
}
