package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return New(Config{
		Delay:      time.Millisecond,
		RetryBase:  time.Millisecond,
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	})
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	resp, err := testClient(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Markup(), "ok")
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchBadStatusIsFatal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindStatus, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.False(t, fe.Retryable())
	// A bad status must not be retried.
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchRetriesConnectionFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	resp, err := testClient(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, resp.Markup(), "recovered")
	require.EqualValues(t, 2, hits.Load())
}

func TestFetchRetriesExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	_, err := testClient(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(t).Fetch(ctx, "http://127.0.0.1:1/never")
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindCanceled, fe.Kind)
}

func TestBackoffDoubles(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	require.Equal(t, 5*time.Second, c.backoff(0))
	require.Equal(t, 10*time.Second, c.backoff(1))
	require.Equal(t, 20*time.Second, c.backoff(2))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		kind   ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, 0, KindTimeout},
		{"canceled", context.Canceled, 0, KindCanceled},
		{"status", errors.New("Not Found"), 404, KindStatus},
		{"timeout text", errors.New("read timeout"), 0, KindTimeout},
		{"refused", errors.New("connection refused"), 0, KindConnection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fe := classify("http://example.com", tc.err, tc.status)
			require.Equal(t, tc.kind, fe.Kind)
			if tc.kind == KindTimeout || tc.kind == KindConnection {
				require.True(t, fe.Retryable())
			} else {
				require.False(t, fe.Retryable())
			}
		})
	}
}
