package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{MaxRetries: -1})
	require.Equal(t, 30*time.Second, c.httpClient.Timeout)
	require.Equal(t, 0, c.maxRetries)
	require.Equal(t, 200*time.Millisecond, c.initialBackoff)
	require.Equal(t, 5*time.Second, c.maxBackoff)
	require.NotNil(t, c.clock)
}

func TestGet_RetriesTransientStatusThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"jsonpaths": []}`)
	}))
	defer srv.Close()

	clk := clockwork.NewFakeClock()
	c := NewClient(Config{MaxRetries: 3, InitialBackoff: time.Second, Clock: clk})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		resp *http.Response
		err  error
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		resp, err = c.Get(ctx, srv.URL+"/log_json_path.json")
	}()
	for i := 0; i < 2; i++ {
		require.NoError(t, clk.BlockUntilContext(ctx, 1))
		clk.Advance(time.Duration(1<<i) * time.Second)
	}
	<-done

	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.JSONEq(t, `{"jsonpaths": []}`, string(body))
	require.EqualValues(t, 3, calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := c.Get(context.Background(), srv.URL)
	require.ErrorContains(t, err, "giving up after 3 attempts")
	require.EqualValues(t, 3, calls.Load())
}

func TestGet_NonRetryableStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3})
	_, err := c.Get(context.Background(), srv.URL+"/missing.json")
	require.ErrorContains(t, err, "404")
	require.EqualValues(t, 1, calls.Load())
}

func TestGet_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	clk := clockwork.NewFakeClock()
	c := NewClient(Config{MaxRetries: 5, Clock: clk})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, srv.URL)
		errc <- err
	}()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	require.NoError(t, clk.BlockUntilContext(waitCtx, 1))
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{70, time.Second},
	}
	for _, tt := range tests {
		if got := backoffDuration(100*time.Millisecond, tt.attempt, time.Second); got != tt.want {
			t.Fatalf("backoffDuration(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	for code, want := range map[int]bool{200: false, 404: false, 429: true, 500: true, 503: true, 600: false} {
		require.Equal(t, want, isRetryableStatus(code), "status %d", code)
	}
}
