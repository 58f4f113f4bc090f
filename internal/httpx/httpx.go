// Package httpx builds the HTTP clients used by download and upload actions.
package httpx

import (
	"fmt"
	"time"

	"resty.dev/v3"
)

// UserAgent identifies the tool to remote services.
const UserAgent = "buildgrid"

// DefaultTimeout applies when an action does not configure one.
const DefaultTimeout = 60 * time.Second

// NewClient returns a client with the given timeout and retry count. The
// caller owns the client and must Close it.
func NewClient(timeout time.Duration, retries int) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetHeader("User-Agent", UserAgent)
}

// ParseTimeout parses an optional duration string, falling back to def.
func ParseTimeout(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout '%s': %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got '%s'", s)
	}
	return d, nil
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status: %s", e.URL, e.Status)
}

// Check turns an error status into a *StatusError.
func Check(resp *resty.Response, url string) error {
	if resp.IsError() || resp.StatusCode() >= 300 {
		return &StatusError{URL: url, Status: resp.Status(), Code: resp.StatusCode()}
	}
	return nil
}
