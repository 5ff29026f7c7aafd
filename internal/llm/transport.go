package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

const defaultHTTPTimeout = 120 * time.Second

// BackendOption adjusts an HTTP backend at construction.
type BackendOption func(*transport)

// WithHTTPClient replaces the HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) BackendOption {
	return func(t *transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the HTTP client timeout. Zero keeps the default.
func WithTimeout(d time.Duration) BackendOption {
	return func(t *transport) {
		if d > 0 {
			t.client = &http.Client{Timeout: d}
		}
	}
}

// WithRetries sets how many times opening a request is retried.
func WithRetries(n int) BackendOption {
	return func(t *transport) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithLogger sets the logger used for retry and recovery warnings.
func WithLogger(l *log.Logger) BackendOption {
	return func(t *transport) {
		t.logger = l
	}
}

// transport is the HTTP plumbing shared by the local and cloud backends.
type transport struct {
	backend    string
	client     *http.Client
	maxRetries int
	logger     *log.Logger
}

func newTransport(backend string, opts []BackendOption) transport {
	t := transport{
		backend:    backend,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func (t *transport) warnf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// post sends a JSON body and returns the response once a 2xx status arrives.
// Opening the request is retried; the caller owns the returned body.
func (t *transport) post(ctx context.Context, url string, headers map[string]string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", t.backend, err)
	}

	return RetryCall(ctx, t.maxRetries, t.logger, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", t.backend, err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, perrors.NewBackendError(t.backend, 0, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
			resp.Body.Close()
			return nil, perrors.NewBackendError(t.backend, resp.StatusCode, errors.New(apiErrorMessage(data)))
		}
		return resp, nil
	})
}

// apiErrorMessage extracts a readable message from an error body in any of the
// shapes the supported APIs use.
func apiErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

// errStopStream is returned by event callbacks when the consumer stopped reading.
var errStopStream = errors.New("stream stopped by consumer")

// consumeSSE parses a Server-Sent Events stream, invoking fn for each event.
func consumeSSE(ctx context.Context, r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	var eventName string
	var dataBuf strings.Builder
	flush := func() error {
		if dataBuf.Len() == 0 {
			eventName = ""
			return nil
		}
		payload := dataBuf.String()
		dataBuf.Reset()
		name := eventName
		eventName = ""
		return fn(name, payload)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(line[6:])
			continue
		}
		if strings.HasPrefix(line, "data:") {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimSpace(line[5:]))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// consumeNDJSON invokes fn for every non-empty line of a newline-delimited JSON stream.
func consumeNDJSON(ctx context.Context, r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
