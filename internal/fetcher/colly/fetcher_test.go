package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *[]time.Duration) {
	t.Helper()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = time.Millisecond
		cfg.BackoffMax = 5 * time.Millisecond
	}
	f := New(cfg, nil, nil)
	var mu sync.Mutex
	slept := make([]time.Duration, 0)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return f, &slept
}

func TestGetReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, "<html>ok</html>")
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{DefaultUserAgent: "fallback-agent"})
	body, err := f.Get(context.Background(), srv.URL+"/anime-list/")
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(body))
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "recovered")
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{})
	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", string(body))
	require.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{MaxAttempts: 2})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Equal(t, int32(2), calls.Load())
}

func TestGetStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "unreachable")
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetRetriesClientTimeouts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(400 * time.Millisecond):
			_, _ = io.WriteString(w, "too late")
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{Timeout: 100 * time.Millisecond, MaxAttempts: 3})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(3), calls.Load())
}

func TestGetAcceptsNonErrorStatuses(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusNonAuthoritativeInfo, http.StatusNoContent} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(code)
			if code != http.StatusNoContent {
				_, _ = io.WriteString(w, "cached copy")
			}
		}))

		f, _ := newTestFetcher(t, Config{})
		body, err := f.Get(context.Background(), srv.URL)
		srv.Close()
		require.NoError(t, err, "status %d", code)
		require.Equal(t, int32(1), calls.Load(), "status %d", code)
		if code == http.StatusNoContent {
			require.Empty(t, body)
		} else {
			require.Equal(t, "cached copy", string(body))
		}
	}
}

func TestGetDoesNotRetryAfterCallerDeadline(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{Timeout: 500 * time.Millisecond, MaxAttempts: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), calls.Load())
}

func TestPostFormSendsAjaxHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "nonce-action", r.PostForm.Get("action"))
		require.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		require.Equal(t, "https://otakudesu.test/episode/ep-1/", r.Header.Get("Referer"))
		require.Equal(t, "https://otakudesu.test", r.Header.Get("Origin"))
		require.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
		_, _ = io.WriteString(w, `{"data":"abc"}`)
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{Origin: "https://otakudesu.test/"})
	body, err := f.PostForm(context.Background(), srv.URL, map[string]string{"action": "nonce-action"},
		"https://otakudesu.test/episode/ep-1/")
	require.NoError(t, err)
	require.JSONEq(t, `{"data":"abc"}`, string(body))
}

func TestPostFormWithoutRefererOmitsOrigin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Referer"))
		require.Empty(t, r.Header.Get("Origin"))
		_, _ = io.WriteString(w, "{}")
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{Origin: "https://otakudesu.test"})
	_, err := f.PostForm(context.Background(), srv.URL, map[string]string{"action": "x"}, "")
	require.NoError(t, err)
}

func TestUserAgentSelection(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	f, _ := newTestFetcher(t, Config{DefaultUserAgent: "fallback-agent"})
	_, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "fallback-agent", <-seen)

	pooled, _ := newTestFetcher(t, Config{
		DefaultUserAgent: "fallback-agent",
		UserAgents:       []string{"ua-one", "ua-two"},
	})
	pooled.intn = func(int) int { return 1 }
	_, err = pooled.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ua-two", <-seen)
}

func TestPolitenessDelayWindows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	f, slept := newTestFetcher(t, Config{
		PageDelay: Window{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		AjaxDelay: Window{Min: 300 * time.Millisecond, Max: time.Second},
	})
	_, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = f.PostForm(context.Background(), srv.URL, map[string]string{"a": "b"}, "")
	require.NoError(t, err)

	require.Len(t, *slept, 2)
	require.GreaterOrEqual(t, (*slept)[0], 500*time.Millisecond)
	require.LessOrEqual(t, (*slept)[0], 1500*time.Millisecond)
	require.GreaterOrEqual(t, (*slept)[1], 300*time.Millisecond)
	require.LessOrEqual(t, (*slept)[1], time.Second)
}

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return w.err
}

func TestLimiterConsultedPerAttempt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	waiter := &countingWaiter{}
	f := New(Config{MaxAttempts: 1}, waiter, nil)
	f.sleep = func(context.Context, time.Duration) error { return nil }
	_, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, int32(1), waiter.calls.Load())

	blocked := &countingWaiter{err: context.DeadlineExceeded}
	f = New(Config{MaxAttempts: 3}, blocked, nil)
	f.sleep = func(context.Context, time.Duration) error { return nil }
	_, err = f.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), blocked.calls.Load())
}

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, d := range want {
		require.Equal(t, d, p.Backoff(i), "attempt %d", i)
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 0)
	live := context.Background()
	require.False(t, p.ShouldRetry(live, nil))
	require.True(t, p.ShouldRetry(live, &StatusError{StatusCode: 502}))
	require.True(t, p.ShouldRetry(live, errors.New("connection reset")))
	require.True(t, p.ShouldRetry(live, fmt.Errorf("client timeout: %w", context.DeadlineExceeded)))

	done, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, p.ShouldRetry(done, context.Canceled))
	require.False(t, p.ShouldRetry(done, &StatusError{StatusCode: 502}))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	var body []byte
	var fetchErr error
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, "body", string(body))
	require.NoError(t, fetchErr)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusNoContent})
	require.Empty(t, body)
	require.NoError(t, fetchErr)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusBadGateway, Body: []byte("gateway")})
	var gatewayErr *StatusError
	require.ErrorAs(t, fetchErr, &gatewayErr)
	require.Equal(t, http.StatusBadGateway, gatewayErr.StatusCode)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	var statusErr *StatusError
	require.ErrorAs(t, fetchErr, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchOutcome(t *testing.T) {
	t.Parallel()

	live := context.Background()
	require.Equal(t, "ok", fetchOutcome(live, nil))
	require.Equal(t, "http_error", fetchOutcome(live, &StatusError{StatusCode: 500}))
	require.Equal(t, "timeout", fetchOutcome(live, fmt.Errorf("await headers: %w", context.DeadlineExceeded)))
	require.Equal(t, "transport_error", fetchOutcome(live, errors.New("dial tcp")))

	done, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, "canceled", fetchOutcome(done, context.Canceled))
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
