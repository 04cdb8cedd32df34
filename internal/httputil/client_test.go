package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detectResponse struct {
	Count int `json:"count"`
}

func TestPost_DecodesResponse(t *testing.T) {
	t.Parallel()

	m := NewMockHTTPClient().AddResponse(http.StatusOK, `{"count": 4}`)
	var out detectResponse
	err := Post(context.Background(), m, "http://detector/detect", "image/jpeg", []byte("jpeg"), &out)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Count)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "image/jpeg", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, []byte("jpeg"), reqs[0].Body)
}

func TestPost_StatusError(t *testing.T) {
	t.Parallel()

	m := NewMockHTTPClient().AddResponse(http.StatusServiceUnavailable, "model loading\n")
	err := Post(context.Background(), m, "http://detector/detect", "image/jpeg", nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Contains(t, err.Error(), "model loading")
	assert.False(t, IsStatus(errors.New("other"), http.StatusServiceUnavailable))
}

func TestPost_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	m := NewMockHTTPClient().AddError(boom)
	err := Post(context.Background(), m, "http://detector/detect", "image/jpeg", nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestPost_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMockHTTPClient()
	err := Post(ctx, m, "http://detector/detect", "image/jpeg", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockHTTPClient_DefaultAndDoFunc(t *testing.T) {
	t.Parallel()

	m := NewMockHTTPClient()
	var out map[string]any
	require.NoError(t, Post(context.Background(), m, "http://x", "text/plain", nil, &out))
	assert.Empty(t, out)

	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		return response(req, http.StatusTeapot, ""), nil
	}
	err := Post(context.Background(), m, "http://x", "text/plain", nil, nil)
	assert.True(t, IsStatus(err, http.StatusTeapot))
	assert.Len(t, m.Requests(), 2)
}

func TestNewClient_RealServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, detectResponse{Count: 2})
	}))
	defer srv.Close()

	c := NewClient(0)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, time.Second, NewClient(time.Second).Timeout)

	var out detectResponse
	require.NoError(t, Post(context.Background(), c, srv.URL, "image/jpeg", []byte{1}, &out))
	assert.Equal(t, 2, out.Count)
}

func TestWithUserAgent(t *testing.T) {
	t.Parallel()

	m := NewMockHTTPClient()
	c := WithUserAgent(m, "parking-report/test")
	require.NoError(t, Post(context.Background(), c, "http://x", "image/jpeg", nil, nil))
	assert.Equal(t, "parking-report/test", m.Requests()[0].Header.Get("User-Agent"))
}
