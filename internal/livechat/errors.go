package livechat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRoom    = errors.New("room id is required")
	ErrEmptyMessage = errors.New("message is empty")
)

// APIError is a well-formed response whose code reports a failure.
// Error returns the server's message so it reads well in outcomes.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("code=%d", e.Code)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("livechat: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("livechat: http status %d: %s", e.StatusCode, e.Body)
}
