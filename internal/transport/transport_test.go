package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
		retry  bool
	}{
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusForbidden, ErrUnauthorized, false},
		{http.StatusBadGateway, ErrServer, true},
		{http.StatusBadRequest, ErrBadResponse, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			pe := Classify(tt.status, "x")
			require.NotNil(t, pe)
			assert.Equal(t, tt.want, pe.Code)
			assert.Equal(t, tt.retry, pe.Retryable())
		})
	}
	assert.Nil(t, Classify(http.StatusOK, ""))
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))

	pe := &ProviderError{Code: ErrServer, Status: 500, Message: "boom"}
	wrapped := fmt.Errorf("call failed: %w", pe)
	assert.Same(t, pe, NormalizeError(wrapped))

	plain := NormalizeError(errors.New("plain"))
	assert.Equal(t, ErrUnknown, plain.Code)
	assert.Equal(t, "unknown: plain", plain.Error())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(Options{RetryMax: 3, RetryBackoff: time.Millisecond, BearerToken: "secret"})
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Options{RetryMax: 3, RetryBackoff: time.Millisecond})
	err := c.GetJSON(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUnauthorized, pe.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientPostJSONReplaysBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		buf := make([]byte, 64)
		k, _ := r.Body.Read(buf)
		assert.Equal(t, `{"inputs":"hi"}`, string(buf[:k]))
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[1,2]`))
	}))
	defer srv.Close()

	c := NewClient(Options{RetryBackoff: time.Millisecond})
	var out []int
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"inputs": "hi"}, &out))
	assert.Equal(t, []int{1, 2}, out)
}

func TestClientBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(Options{})
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrBadResponse, pe.Code)
}

func TestClientHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(Options{})
	err := c.GetJSON(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter(t *testing.T) {
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow())
	assert.NoError(t, nilLimiter.Wait(context.Background()))

	unlimited := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	slow := NewLimiter(0.001, 1)
	assert.True(t, slow.Allow())
	assert.False(t, slow.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Wait(ctx))
}

func TestRegistryReturnsSameLimiter(t *testing.T) {
	r := NewRegistry()
	a := r.Get("external", 1)
	b := r.Get("external", 50)
	c := r.Get("inference", 1)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
