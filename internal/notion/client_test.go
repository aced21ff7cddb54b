package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chenyqthu/mailagent/internal/retry"
)

func TestRetryAfter(t *testing.T) {
	d, ok := retryAfter("3")
	if !ok || d != 3*time.Second {
		t.Errorf("retryAfter(3) = %v, %v, want 3s, true", d, ok)
	}
	if _, ok := retryAfter(""); ok {
		t.Error("expected empty header to report not-ok")
	}
	if _, ok := retryAfter("not-a-number"); ok {
		t.Error("expected non-numeric header to report not-ok")
	}
}

func TestClient_CreatePage_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(pageResponse{ID: "page-123"})
	}

	server := httptest.NewServer(http.HandlerFunc(handler))
	defer server.Close()

	c := NewClient("test-token",
		WithBackoff(&retry.ExponentialBackoff{Interval: time.Millisecond, Base: 1}),
	)
	c.httpClient = server.Client()
	overrideBaseURLForTest(t, server.URL)

	id, err := c.CreatePage(context.Background(), "db-1", Properties{"Name": "x"}, nil, nil)
	if err != nil {
		t.Fatalf("CreatePage() error = %v", err)
	}
	if id != "page-123" {
		t.Errorf("CreatePage() id = %q, want page-123", id)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 rate-limited + 1 success), got %d", calls)
	}
}

func TestClient_FailsFastOn4xx(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad request"}`))
	}
	server := httptest.NewServer(http.HandlerFunc(handler))
	defer server.Close()

	c := NewClient("test-token")
	c.httpClient = server.Client()
	overrideBaseURLForTest(t, server.URL)

	_, err := c.CreatePage(context.Background(), "db-1", Properties{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !errors.Is(err, ErrClientError) {
		t.Errorf("expected ErrClientError, got %v", err)
	}
}

// overrideBaseURLForTest points the client at an httptest.Server for the
// duration of t, restoring the real base URL on cleanup.
func overrideBaseURLForTest(t *testing.T, url string) {
	t.Helper()
	prev := testBaseURL
	testBaseURL = url
	t.Cleanup(func() { testBaseURL = prev })
}
