// Package httputil holds the HTTP plumbing shared by the detector client
// and the monitor: an injectable client, a recording fake and JSON
// response helpers.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient is the subset of *http.Client the detector needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultTimeout bounds requests made through NewClient.
const DefaultTimeout = 10 * time.Second

// NewClient returns an *http.Client with timeout, or DefaultTimeout when
// timeout is zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is returned by PostJSON for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// Post sends body to url and decodes a JSON response into out. The
// request carries ctx, so cancelling ctx aborts it.
func Post(ctx context.Context, c HTTPClient, url, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return DecodeJSON(resp.Body, out)
}

// MockHTTPClient records requests and replays queued responses. When the
// queue is empty it answers 200 with an empty JSON object.
type MockHTTPClient struct {
	mu        sync.Mutex
	DoFunc    func(req *http.Request) (*http.Response, error)
	requests  []RecordedRequest
	responses []mockResponse
}

// RecordedRequest is a request as the mock saw it. The body is read
// eagerly so tests can inspect it after the call.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type mockResponse struct {
	status int
	body   string
	err    error
}

// NewMockHTTPClient returns an empty mock.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{status: status, body: body})
	return m
}

// AddError queues a transport error.
func (m *MockHTTPClient) AddError(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Do implements HTTPClient.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		rec.Body = b
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	do := m.DoFunc
	var next *mockResponse
	if do == nil && len(m.responses) > 0 {
		next = &m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if do != nil {
		return do(req)
	}
	if next == nil {
		return response(req, http.StatusOK, "{}"), nil
	}
	if next.err != nil {
		return nil, next.err
	}
	return response(req, next.status, next.body), nil
}

// Requests returns a copy of every request seen so far.
func (m *MockHTTPClient) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

func response(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type userAgentClient struct {
	next HTTPClient
	ua   string
}

// WithUserAgent returns a client that sets the User-Agent header on every
// request before passing it to c.
func WithUserAgent(c HTTPClient, ua string) HTTPClient {
	return &userAgentClient{next: c, ua: ua}
}

func (c *userAgentClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.ua)
	return c.next.Do(req)
}
