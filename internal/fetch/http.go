// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/invowk/modload/pkg/moderr"
)

const (
	// DefaultHTTPRetryMax is the number of retries for transient HTTP failures.
	DefaultHTTPRetryMax = 3
	// DefaultHTTPTimeout bounds a single HTTP request.
	DefaultHTTPTimeout = 30 * time.Second
	// maxHTTPBody bounds how much of a response body is read.
	maxHTTPBody = 32 << 20
)

type (
	// HTTPFetcher reads http: and https: URLs with automatic retries.
	HTTPFetcher struct {
		client *retryablehttp.Client
	}

	// leveledLogger routes retryablehttp's log lines to a charmbracelet logger.
	leveledLogger struct {
		l *log.Logger
	}
)

// NewHTTPFetcher creates an HTTPFetcher. A nil logger discards retry logs.
func NewHTTPFetcher(retryMax int, timeout time.Duration, logger *log.Logger) *HTTPFetcher {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = timeout

	client := retryablehttp.NewClient()
	client.HTTPClient = base
	client.RetryMax = retryMax
	client.Logger = nil
	if logger != nil {
		client.Logger = leveledLogger{l: logger}
	}
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 && logger != nil {
			logger.Info("retrying module fetch", "url", req.URL.String(), "attempt", attempt)
		}
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &HTTPFetcher{client: client}
}

// ReadBytes performs a GET for rawURL. 404 and 410 responses are NotFound.
func (f *HTTPFetcher) ReadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: err.Error()}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &moderr.NotFoundError{Specifier: rawURL}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if len(body) > maxHTTPBody {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", rawURL, maxHTTPBody)
	}
	return body, nil
}

func (a leveledLogger) Error(msg string, keysAndValues ...any) { a.l.Error(msg, keysAndValues...) }
func (a leveledLogger) Info(msg string, keysAndValues ...any)  { a.l.Debug(msg, keysAndValues...) }
func (a leveledLogger) Debug(msg string, keysAndValues ...any) { a.l.Debug(msg, keysAndValues...) }
func (a leveledLogger) Warn(msg string, keysAndValues ...any)  { a.l.Warn(msg, keysAndValues...) }
