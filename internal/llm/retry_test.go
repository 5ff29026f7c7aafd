package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

func shortenBackoff(t *testing.T) {
	t.Helper()
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = old })
}

func TestRetryCall_SucceedsAfterRetryable(t *testing.T) {
	shortenBackoff(t)
	attempts := 0
	got, err := RetryCall(context.Background(), 3, nil, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", perrors.NewBackendError("ollama", 503, errors.New("busy"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestRetryCall_PermanentStopsImmediately(t *testing.T) {
	shortenBackoff(t)
	attempts := 0
	_, err := RetryCall(context.Background(), 5, nil, func() (int, error) {
		attempts++
		return 0, perrors.NewBackendError("openai", 400, errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryCall_ExhaustsRetries(t *testing.T) {
	shortenBackoff(t)
	attempts := 0
	_, err := RetryCall(context.Background(), 2, nil, func() (int, error) {
		attempts++
		return 0, perrors.NewRetryableError(fmt.Errorf("attempt %d", attempts), "test")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d", attempts)
	}
}

func TestRetryCall_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryCall(ctx, 3, nil, func() (int, error) {
		return 0, perrors.NewRetryableError(errors.New("timeout"), "test")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	shortenBackoff(t)
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"back"},"done":true}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "m", WithRetries(2))
	resp, err := b.Send(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply.Content != "back" {
		t.Errorf("unexpected content %q", resp.Reply.Content)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 2 requests, got %d", hits)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"nested"}}`, "nested"},
		{`{"error":"flat"}`, "flat"},
		{`{"message":"top"}`, "top"},
		{`plain text`, "plain text"},
		{``, "empty response body"},
	}
	for _, tt := range tests {
		if got := apiErrorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("apiErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
