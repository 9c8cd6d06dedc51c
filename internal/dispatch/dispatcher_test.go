package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timerRecorder fires immediately and keeps every requested wait.
type timerRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
	start func()
}

func newTimerRecorder() *timerRecorder {
	return &timerRecorder{c: make(chan time.Time, 1)}
}

func (r *timerRecorder) Start(d time.Duration) {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	if r.start != nil {
		r.start()
		return
	}
	r.c <- time.Now()
}

func (r *timerRecorder) Stop() {}

func (r *timerRecorder) C() <-chan time.Time { return r.c }

func newTestDispatcher(url string) (*Dispatcher, *timerRecorder) {
	rec := newTimerRecorder()
	d := New(url, "https://api.example.com", 5*time.Second, nil, nil).WithTimer(rec)
	return d, rec
}

func TestWake_SendsPayload(t *testing.T) {
	var got wakeRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, rec := newTestDispatcher(srv.URL)
	require.NoError(t, d.Wake(context.Background(), "asset_upload", "tok-1"))

	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, wakeRequest{Reason: "asset_upload", Token: "tok-1", APIBaseURL: "https://api.example.com"}, got)
	assert.Empty(t, rec.waits)
}

func TestWake_RetriesColdStart(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Container is starting"))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	d, rec := newTestDispatcher(srv.URL)
	require.NoError(t, d.Wake(context.Background(), "r", "t"))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, rec.waits)
}

func TestWake_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d, rec := newTestDispatcher(srv.URL)
	err := d.Wake(context.Background(), "r", "t")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(maxAttempts), calls.Load())
	assert.Len(t, rec.waits, maxAttempts-1)
}

func TestWake_PermanentFailureIsImmediate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer srv.Close()

	d, rec := newTestDispatcher(srv.URL)
	err := d.Wake(context.Background(), "r", "t")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "bad token", statusErr.Body)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.waits)
}

func TestWake_NoURLIsNoop(t *testing.T) {
	d, _ := newTestDispatcher("")
	assert.False(t, d.Enabled())
	assert.NoError(t, d.Wake(context.Background(), "r", "t"))
	d.WakeAsync("r", "t")
}

func TestWakeAsync_Delivers(t *testing.T) {
	done := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wakeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		done <- req.Reason
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(srv.URL)
	d.WakeAsync("lease_requeue", "t")

	select {
	case reason := <-done:
		assert.Equal(t, "lease_requeue", reason)
	case <-time.After(5 * time.Second):
		t.Fatal("wake was not delivered")
	}
}

func TestBackOffSchedule(t *testing.T) {
	b := newBackOff()
	b.Reset()

	var waits []time.Duration
	for next := b.NextBackOff(); next != backoff.Stop; next = b.NextBackOff() {
		waits = append(waits, next)
	}

	assert.Equal(t, []time.Duration{
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
	}, waits)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(http.StatusGatewayTimeout, nil))
	assert.True(t, Retryable(http.StatusNotFound, []byte("no healthy upstream")))
	assert.True(t, Retryable(http.StatusInternalServerError, []byte("Service NOT READY")))
	assert.False(t, Retryable(http.StatusBadRequest, []byte("invalid payload")))
}

func TestWake_StopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := newTimerRecorder()
	rec.start = cancel
	d := New(srv.URL, "", time.Second, nil, nil).WithTimer(rec)

	err := d.Wake(ctx, "r", "t")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}
