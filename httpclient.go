package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// NewHTTPClient builds the resty client the wallpaper and weather providers
// share. transport, when non-nil, is installed beneath resty so every call
// goes through the offline cache.
func NewHTTPClient(cfg HTTPConfig, transport http.RoundTripper, logger *slog.Logger) *resty.Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "startpage/1.0"
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json, */*")

	if transport != nil {
		client.SetTransport(transport)
	}

	if cfg.MaxRetries > 0 {
		client.
			SetRetryCount(cfg.MaxRetries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
			})
	}

	if cfg.Debug && logger != nil {
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			logger.Debug("http request", "method", r.Method, "url", r.URL)
			return nil
		})
		client.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			body := r.String()
			if len(body) > 1000 {
				body = body[:1000] + "... (truncated)"
			}
			logger.Debug("http response",
				"status", r.StatusCode(),
				"url", r.Request.URL,
				"time", r.Time(),
				"cache", r.Header().Get(cacheStatusHeader),
				"body", body,
			)
			return nil
		})
	}

	return client
}

// statusError is returned for non-2xx responses from the live services.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d for %s", e.status, e.url)
}
